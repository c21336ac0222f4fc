package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrOverlayNotFound indicates the requested overlay was never rendered
var ErrOverlayNotFound = errors.New("overlay not found")

// Overlay is one catalog entry: the parameters an overlay was rendered
// with plus the metadata the worker reported back. The catalog survives
// host restarts; the worker's in-memory pyramids do not, so after a
// restart an entry means "render this again with these parameters".
type Overlay struct {
	ID         string    `json:"overlay_id"`
	DatasetID  string    `json:"dataset_id"`
	ImgID      string    `json:"img_id"`
	SegID      string    `json:"seg_id"`
	FillKey    string    `json:"fill_key"`
	BorderKey  *string   `json:"border_key"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	TileSize   int       `json:"tile_size"`
	MaxZoom    int       `json:"max_zoom"`
	IsGene     bool      `json:"is_gene"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Catalog handles SQLite storage for rendered overlays, with an
// in-memory map in front of it for reads.
type Catalog struct {
	db     *sql.DB
	dbPath string

	mu       sync.RWMutex
	overlays map[string]*Overlay
}

// NewCatalog opens (or creates) the catalog database at dbPath.
func NewCatalog(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog dir: %w", err)
		}
	}

	c := &Catalog{
		dbPath:   dbPath,
		overlays: make(map[string]*Overlay),
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	c.db = db

	// Set busy timeout for concurrent access
	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS overlays (
		id TEXT PRIMARY KEY,
		data JSON NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return c, nil
}

// Close closes the database connection
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put records an overlay, replacing any previous entry under the same ID.
func (c *Catalog) Put(o *Overlay) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding overlay: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO overlays (id, data) VALUES (?, json(?))",
		o.ID, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving overlay: %w", err)
	}

	c.overlays[o.ID] = o
	return nil
}

// Get retrieves one overlay by ID.
func (c *Catalog) Get(id string) (*Overlay, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o, ok := c.overlays[id]
	if !ok {
		return nil, ErrOverlayNotFound
	}
	return o, nil
}

// List returns all recorded overlays, newest first.
func (c *Catalog) List() []*Overlay {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Overlay, 0, len(c.overlays))
	for _, o := range c.overlays {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RenderedAt.After(out[j].RenderedAt)
	})
	return out
}

// Delete removes an overlay from the catalog.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec("DELETE FROM overlays WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting overlay: %w", err)
	}

	delete(c.overlays, id)
	return nil
}

// LoadAll loads all recorded overlays from the database into memory.
func (c *Catalog) LoadAll() error {
	rows, err := c.db.Query("SELECT id, data FROM overlays")
	if err != nil {
		return fmt.Errorf("querying all overlays: %w", err)
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scanning overlay: %w", err)
		}

		var o Overlay
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			// Log but continue
			log.Warningf("failed to load overlay %s: %v", id, err)
			continue
		}
		c.overlays[id] = &o
	}
	return rows.Err()
}
