// Package minidb is the query engine facade: it wires the lexer, parser,
// semantic analyzer, optimizer, plan generator, and executor into a single
// Open/Execute/Close surface so callers never have to drive each stage by
// hand.
package minidb

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/dbctx"
	"github.com/minidb/minidb/internal/exec"
	"github.com/minidb/minidb/internal/optimizer"
	"github.com/minidb/minidb/internal/sql/analyzer"
	"github.com/minidb/minidb/internal/sql/parser"
	"github.com/minidb/minidb/internal/sql/planner"
	"github.com/minidb/minidb/internal/storage/buffer"
	"github.com/minidb/minidb/internal/storage/disk"
	"github.com/minidb/minidb/internal/storage/page"
	"github.com/minidb/minidb/internal/txn"
)

// Config controls how Open builds a database: the buffer pool's size and
// eviction policy, and where the catalog's sidecar file lives. It is built
// with functional options.
type Config struct {
	BufferCapacity int
	EvictionPolicy buffer.Strategy
	SidecarPath    string // defaults to the path passed to Open + ".catalog.json"
}

// Option configures a Config.
type Option func(*Config)

// WithBufferCapacity sets the buffer pool's page capacity.
func WithBufferCapacity(n int) Option { return func(c *Config) { c.BufferCapacity = n } }

// WithEvictionPolicy selects the buffer pool's eviction strategy.
func WithEvictionPolicy(s buffer.Strategy) Option { return func(c *Config) { c.EvictionPolicy = s } }

// WithSidecarPath overrides the catalog sidecar file's path.
func WithSidecarPath(path string) Option { return func(c *Config) { c.SidecarPath = path } }

func defaultConfig() Config {
	return Config{BufferCapacity: 64, EvictionPolicy: buffer.LRU}
}

// fileConfig mirrors Config's fields for loading an optional minidb.yaml.
type fileConfig struct {
	BufferCapacity int    `yaml:"buffer_capacity"`
	EvictionPolicy string `yaml:"eviction_policy"`
	SidecarPath    string `yaml:"sidecar_path"`
}

// LoadConfigFile reads a YAML config file (buffer_capacity, eviction_policy,
// sidecar_path) and returns the Options it implies, for the CLI's
// `--config` flag.
func LoadConfigFile(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("minidb: read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("minidb: parse config: %w", err)
	}
	var opts []Option
	if fc.BufferCapacity > 0 {
		opts = append(opts, WithBufferCapacity(fc.BufferCapacity))
	}
	if fc.EvictionPolicy != "" {
		opts = append(opts, WithEvictionPolicy(buffer.Strategy(fc.EvictionPolicy)))
	}
	if fc.SidecarPath != "" {
		opts = append(opts, WithSidecarPath(fc.SidecarPath))
	}
	return opts, nil
}

// undoAdapter breaks the construction cycle between the transaction manager
// (which needs a txn.Undoer before the engine that implements it exists) and
// the engine (which needs a *txn.Manager). It is assigned its engine once
// both are built.
type undoAdapter struct{ engine *exec.Engine }

func (u *undoAdapter) DropTable(name string) error             { return u.engine.DropTable(name) }
func (u *undoAdapter) RecreateTable(d *catalog.TableDef) error { return u.engine.RecreateTable(d) }

// DB is an open database: its backing file, in-memory catalog, buffer pool,
// and the transaction/executor state layered over them.
type DB struct {
	mu sync.Mutex

	path    string
	cfg     Config
	log     zerolog.Logger
	disk    *disk.Manager
	pool    *buffer.Pool
	cat     *catalog.Catalog
	txns    *txn.Manager
	engine  *exec.Engine
	optStat optimizer.Stats
	queries int64
	started time.Time
}

// Open opens (or creates) the database file at path, restoring its catalog
// from the sidecar file if present.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.SidecarPath == "" {
		cfg.SidecarPath = path + ".catalog.json"
	}

	log := dbctx.NewLogger()

	dm, err := disk.Open(path)
	if err != nil {
		return nil, fmt.Errorf("minidb: open: %w", err)
	}
	pool, err := buffer.NewPool(dm, cfg.BufferCapacity, cfg.EvictionPolicy)
	if err != nil {
		return nil, fmt.Errorf("minidb: open: %w", err)
	}
	pool.SetLogger(log)

	isNewFile := dm.PageCount() == 0
	if err := reserveMetadataPage(pool, isNewFile); err != nil {
		return nil, fmt.Errorf("minidb: open: %w", err)
	}

	cat, err := loadOrCreateCatalog(cfg.SidecarPath, pool, isNewFile)
	if err != nil {
		return nil, err
	}

	adapter := &undoAdapter{}
	txns := txn.NewManager(adapter)
	engine := exec.NewEngine(cat, pool, txns)
	engine.SetLogger(log)
	adapter.engine = engine

	db := &DB{
		path:    path,
		cfg:     cfg,
		log:     log,
		disk:    dm,
		pool:    pool,
		cat:     cat,
		txns:    txns,
		engine:  engine,
		started: time.Now(),
	}
	return db, nil
}

// metadataPageID is the fixed page id reserved for the catalog's
// page-embedded copy. It is claimed before any table heap page is
// allocated, so AllocatePage never hands it to a table.
const metadataPageID = 0

// reserveMetadataPage claims page 0 as a TypeMetadata page on a brand-new
// database file. An existing file already has it from a prior Open.
func reserveMetadataPage(pool *buffer.Pool, isNewFile bool) error {
	if !isNewFile {
		return nil
	}
	pg, err := pool.NewPage(page.TypeMetadata)
	if err != nil {
		return err
	}
	if pg.Header.PageID != metadataPageID {
		return fmt.Errorf("expected metadata page id %d, got %d", metadataPageID, pg.Header.PageID)
	}
	return nil
}

// loadOrCreateCatalog prefers the sidecar file if it is present and decodes
// cleanly. Otherwise, on an existing database file, it falls back to the
// catalog copy embedded in the metadata page chain rooted at
// metadataPageID. A brand-new file with neither gets an empty catalog.
func loadOrCreateCatalog(sidecarPath string, pool *buffer.Pool, isNewFile bool) (*catalog.Catalog, error) {
	data, err := os.ReadFile(sidecarPath)
	switch {
	case err == nil:
		if cat, ferr := catalog.FromBytes(data); ferr == nil {
			return cat, nil
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("minidb: read catalog: %w", err)
	}

	if isNewFile {
		return catalog.New(), nil
	}

	pageData, err := readCatalogPages(pool)
	if err != nil {
		return nil, fmt.Errorf("minidb: read catalog metadata page: %w", err)
	}
	if len(pageData) == 0 {
		return catalog.New(), nil
	}
	cat, err := catalog.FromBytes(pageData)
	if err != nil {
		return nil, fmt.Errorf("minidb: decode catalog metadata page: %w", err)
	}
	return cat, nil
}

// readCatalogPages walks the metadata page chain starting at metadataPageID
// and concatenates every page's payload in link order.
func readCatalogPages(pool *buffer.Pool) ([]byte, error) {
	var out []byte
	pid := uint32(metadataPageID)
	for {
		pg, err := pool.Get(pid)
		if err != nil {
			return nil, err
		}
		out = append(out, pg.PayloadBytes()...)
		next := pg.Header.NextPage
		pool.Unpin(pid, false)
		if next == page.NoPage {
			return out, nil
		}
		pid = uint32(next)
	}
}

// writeCatalogPages splits data across the metadata page chain rooted at
// metadataPageID, one page.PayloadSize chunk per page, allocating
// additional chained pages as needed and cutting the chain after the last
// chunk used.
func (db *DB) writeCatalogPages(data []byte) error {
	chunks := chunkPayload(data)
	pid := uint32(metadataPageID)
	for i, chunk := range chunks {
		pg, err := db.pool.Get(pid)
		if err != nil {
			return err
		}
		if err := pg.SetPayload(chunk, uint32(len(chunk))); err != nil {
			db.pool.Unpin(pid, false)
			return err
		}

		if i == len(chunks)-1 {
			pg.Header.NextPage = page.NoPage
			db.pool.Unpin(pid, true)
			return nil
		}

		next := pg.Header.NextPage
		if next == page.NoPage {
			newPg, err := db.pool.NewPage(page.TypeMetadata)
			if err != nil {
				db.pool.Unpin(pid, true)
				return err
			}
			next = int32(newPg.Header.PageID)
			pg.Header.NextPage = next
		}
		db.pool.Unpin(pid, true)
		pid = uint32(next)
	}
	return nil
}

// chunkPayload splits data into page.PayloadSize-sized pieces, always
// returning at least one (possibly empty) chunk.
func chunkPayload(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := page.PayloadSize
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func (db *DB) saveCatalog() error {
	data, err := db.cat.ToBytes()
	if err != nil {
		return fmt.Errorf("minidb: encode catalog: %w", err)
	}
	if err := os.WriteFile(db.cfg.SidecarPath, data, 0o644); err != nil {
		return fmt.Errorf("minidb: write catalog: %w", err)
	}
	if err := db.writeCatalogPages(data); err != nil {
		return fmt.Errorf("minidb: write catalog metadata page: %w", err)
	}
	return nil
}

// Execute runs exactly one SQL statement end to end: lex, parse, analyze,
// plan, optimize, execute.
func (db *DB) Execute(sql string) (*exec.QueryResult, error) {
	results, err := db.ExecuteBatch(sql)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("minidb: Execute expects exactly one statement, got %d", len(results))
	}
	return results[0], nil
}

// ExecuteBatch runs every statement in sql in order, returning one result
// per statement. A semantic error in any statement aborts the whole batch
// before anything executes.
func (db *DB) ExecuteBatch(sql string) ([]*exec.QueryResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	prog, err := parser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("minidb: syntax error: %w", err)
	}

	res := analyzer.Analyze(prog, db.cat)
	if !res.OK {
		return nil, newSemanticError(res)
	}

	plans, err := planner.Generate(prog)
	if err != nil {
		return nil, fmt.Errorf("minidb: plan error: %w", err)
	}

	ddlTouched := false
	out := make([]*exec.QueryResult, 0, len(plans))
	for i, plan := range plans {
		stats := optimizer.Optimize(plan)
		db.optStat.Add(stats)

		result, err := db.engine.Execute(plan)
		if err != nil {
			return nil, fmt.Errorf("minidb: execution error in statement %d: %w", i+1, err)
		}
		out = append(out, result)

		switch plan.Operator {
		case planner.OpCreateTable, planner.OpDropTable:
			ddlTouched = true
		}
	}
	if ddlTouched {
		if err := db.saveCatalog(); err != nil {
			return nil, err
		}
	}

	db.queries += int64(len(plans))
	db.log.Debug().Dur("elapsed", time.Since(start)).Int("statements", len(plans)).Msg("batch executed")
	return out, nil
}

// SemanticError reports every validation failure the analyzer collected for
// a batch, instead of only the first.
type SemanticError struct {
	Errors []*analyzer.Error
}

func (e *SemanticError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d semantic errors, first: %s", len(e.Errors), e.Errors[0].Error())
}

func newSemanticError(res *analyzer.Result) *SemanticError {
	return &SemanticError{Errors: res.Errors}
}

// ListTables returns every table name currently in the catalog.
func (db *DB) ListTables() []string {
	return db.cat.ListTables()
}

// TableInfo describes one table's schema and storage footprint.
type TableInfo struct {
	Name        string
	Columns     []catalog.Column
	RecordCount int64
	PageCount   int
}

// TableInfo returns the named table's schema, row count, and page count.
func (db *DB) TableInfo(name string) (*TableInfo, error) {
	def, ok := db.cat.GetTable(name)
	if !ok {
		return nil, &catalog.ErrTableNotFound{Name: name}
	}
	return &TableInfo{
		Name:        def.Name,
		Columns:     def.Columns,
		RecordCount: def.RecordCount,
		PageCount:   len(def.PageIDs),
	}, nil
}

// DatabaseInfo summarizes the whole open database for diagnostics.
type DatabaseInfo struct {
	Path          string
	TableCount    int
	PageCount     int
	FreePageCount int
	SizeInBytes   int64
	Uptime        time.Duration
}

// DatabaseInfo reports table count, disk footprint, and uptime.
func (db *DB) DatabaseInfo() DatabaseInfo {
	size, _ := db.disk.SizeInBytes()
	return DatabaseInfo{
		Path:          db.path,
		TableCount:    len(db.cat.ListTables()),
		PageCount:     int(db.disk.PageCount()),
		FreePageCount: db.disk.FreePageCount(),
		SizeInBytes:   size,
		Uptime:        time.Since(db.started),
	}
}

// PerformanceStats reports buffer pool cache behavior, optimizer rewrite
// counts, and the total number of statements executed since Open.
type PerformanceStats struct {
	BufferStats        buffer.Stats
	HitRate            float64
	ConstantFolds      int
	PredicatePushdowns int
	StatementsExecuted int64
}

// PerformanceStats returns a snapshot of the database's runtime counters.
func (db *DB) PerformanceStats() PerformanceStats {
	bs := db.pool.Stats()
	return PerformanceStats{
		BufferStats:        bs,
		HitRate:            bs.HitRate(),
		ConstantFolds:      db.optStat.ConstantFolds,
		PredicatePushdowns: db.optStat.PredicatePushdowns,
		StatementsExecuted: db.queries,
	}
}

// Flush writes every dirty buffer-pool page and the catalog sidecar to
// disk, without closing the database.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.saveCatalog(); err != nil {
		return err
	}
	if err := db.pool.FlushAll(); err != nil {
		return err
	}
	return db.disk.Flush()
}

// Close flushes and releases the database's file handle.
func (db *DB) Close() error {
	if err := db.Flush(); err != nil {
		return err
	}
	return db.disk.Close()
}

// Backup copies the database's data file and catalog sidecar to
// destination (and destination+".catalog.json"), after flushing.
func (db *DB) Backup(destination string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.saveCatalog(); err != nil {
		return err
	}
	if err := db.pool.FlushAll(); err != nil {
		return err
	}
	if err := copyFile(db.path, destination); err != nil {
		return err
	}
	return copyFile(db.cfg.SidecarPath, destination+".catalog.json")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("minidb: backup: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("minidb: backup: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("minidb: backup: %w", err)
	}
	return out.Close()
}
