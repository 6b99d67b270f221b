package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/db"
	"github.com/gridbroker/gridbroker/internal/monitor"
)

const descriptorCacheSize = 512

// Deps carries the shared resources data source constructors may need.
type Deps struct {
	Config   *config.Config
	ConnPool *db.ConnectionPool
}

// Pool is the process-wide registry mapping descriptor ids to pools of
// initialised DataSource instances. Descriptors are loaded lazily on first
// need and cached; instances are reused across operations.
type Pool struct {
	cfg            *config.Config
	connPool       *db.ConnectionPool
	monitorService monitor.MonitorServiceInterface

	descriptors *lru.Cache[string, *Descriptor]

	mu   sync.Mutex
	idle map[string]chan DataSource

	watcher *fsnotify.Watcher
}

// NewPool constructs the data source pool.
func NewPool(cfg *config.Config, connPool *db.ConnectionPool) (*Pool, error) {
	descriptors, err := lru.New[string, *Descriptor](descriptorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating descriptor cache: %w", err)
	}
	return &Pool{
		cfg:         cfg,
		connPool:    connPool,
		descriptors: descriptors,
		idle:        map[string]chan DataSource{},
	}, nil
}

// Acquire hands out a DataSource instance for the descriptor id, reusing a
// pooled instance when one is idle.
func (p *Pool) Acquire(ctx context.Context, id string) (DataSource, error) {
	select {
	case ds := <-p.idleFor(id):
		return ds, nil
	default:
	}

	desc, err := p.descriptor(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.construct(desc)
}

// Release frees the instance's resources and returns it to its pool. Full
// pools drop the instance.
func (p *Pool) Release(ctx context.Context, ds DataSource) {
	if ds == nil {
		return
	}
	ds.FreeResources(ctx)

	select {
	case p.idleFor(ds.Descriptor().ID) <- ds:
	default:
	}
}

// SetMonitorService attaches the monitoring service that counts descriptor
// cache evictions.
func (p *Pool) SetMonitorService(monitorService monitor.MonitorServiceInterface) {
	p.monitorService = monitorService
}

// Descriptor loads (or returns the cached) descriptor for the id. Exposed for
// the data source loader endpoint.
func (p *Pool) Descriptor(ctx context.Context, id string) (*Descriptor, error) {
	return p.descriptor(ctx, id)
}

// Watch starts a descriptor-directory watcher that evicts changed descriptors
// from the cache. It returns immediately; the watcher stops when ctx is done.
func (p *Pool) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating descriptor watcher: %w", err)
	}
	if err := watcher.Add(p.cfg.DataSourcePath()); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching descriptor path %q: %w", p.cfg.DataSourcePath(), err)
	}
	p.watcher = watcher

	go func() {
		defer func() {
			if closeErr := watcher.Close(); closeErr != nil {
				log.Ctx(ctx).Errorf("closing descriptor watcher: %s", closeErr)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if id, ok := descriptorIDFromFile(event.Name); ok {
					p.evict(ctx, id)
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Ctx(ctx).Errorf("descriptor watcher: %s", watchErr)
			}
		}
	}()
	return nil
}

func descriptorIDFromFile(path string) (string, bool) {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".ds.xml"):
		return strings.TrimSuffix(base, ".ds.xml"), true
	case strings.HasSuffix(base, ".ds.js"):
		return strings.TrimSuffix(base, ".ds.js"), true
	}
	return "", false
}

// evict drops the cached descriptor and any idle instances built from it.
func (p *Pool) evict(ctx context.Context, id string) {
	p.descriptors.Remove(id)

	idle := p.idleFor(id)
	for {
		select {
		case ds := <-idle:
			ds.FreeResources(ctx)
		default:
			if p.monitorService != nil {
				if err := p.monitorService.MonitorCounters(monitor.DescriptorsEvictedCount, nil); err != nil {
					log.Ctx(ctx).Errorf("monitoring descriptor eviction: %s", err)
				}
			}
			log.Ctx(ctx).Infof("descriptor %q changed on disk, cache evicted", id)
			return
		}
	}
}

func (p *Pool) idleFor(id string) chan DataSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.idle[id]; ok {
		return ch
	}
	size := p.cfg.DataSourcePoolSize()
	if size < 1 {
		size = 1
	}
	ch := make(chan DataSource, size)
	p.idle[id] = ch
	return ch
}

func (p *Pool) descriptor(ctx context.Context, id string) (*Descriptor, error) {
	if desc, ok := p.descriptors.Get(id); ok {
		return desc, nil
	}

	desc, err := p.loadDescriptor(ctx, id)
	if err != nil {
		return nil, err
	}
	// Concurrent first loads race benignly; last write wins with identical
	// content.
	p.descriptors.Add(id, desc)
	return desc, nil
}

func (p *Pool) loadDescriptor(ctx context.Context, id string) (*Descriptor, error) {
	basePath := p.cfg.DataSourcePath()

	xmlPath := filepath.Join(basePath, id+".ds.xml")
	if data, err := os.ReadFile(xmlPath); err == nil {
		return p.parseDescriptor(id, data, ParseDescriptorXML)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading descriptor %q: %w", xmlPath, err)
	}

	jsPath := filepath.Join(basePath, id+".ds.js")
	if data, err := os.ReadFile(jsPath); err == nil {
		return p.parseDescriptor(id, data, ParseDescriptorJSON)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading descriptor %q: %w", jsPath, err)
	}

	return nil, fmt.Errorf("%w: %q under %q", ErrDescriptorNotFound, id, basePath)
}

func (p *Pool) parseDescriptor(id string, data []byte, parse func([]byte) (*Descriptor, error)) (*Descriptor, error) {
	desc, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("descriptor %q: %w", id, err)
	}
	if desc.ID != id {
		return nil, fmt.Errorf("%w: requested %q but descriptor declares %q", ErrTypeMismatch, id, desc.ID)
	}
	return desc, nil
}

func (p *Pool) construct(desc *Descriptor) (DataSource, error) {
	deps := Deps{Config: p.cfg, ConnPool: p.connPool}

	if desc.ServerConstructor != "" {
		constructor, ok := lookupConstructor(desc.ServerConstructor)
		if !ok {
			return nil, fmt.Errorf("%w: serverConstructor %q of descriptor %q",
				ErrUnknownServerType, desc.ServerConstructor, desc.ID)
		}
		return constructor(desc, deps)
	}

	switch desc.ServerType {
	case "sql":
		return NewSQLDataSource(desc, p.connPool, p.cfg.StrictSQLFiltering()), nil
	case "json":
		return NewJSONDataSource(desc, p.cfg.DataSourcePath()), nil
	case "", "generic":
		return NewBaseDataSource(desc), nil
	}

	if constructor, ok := lookupConstructor(desc.ServerType); ok {
		return constructor(desc, deps)
	}
	return nil, fmt.Errorf("%w: serverType %q of descriptor %q",
		ErrUnknownServerType, desc.ServerType, desc.ID)
}
