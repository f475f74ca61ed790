// Package pluginpolicy implements the Plugin Cache: a policy that
// delegates every decision to a dynamically loaded module (spec §4.6).
// The Object Store's find/insert primitives are used directly (no hook);
// hit/miss/eviction/remove/free are dispatched through five typed
// function-value symbols looked up by name in the loaded plugin, a
// direct application of the standard library's `plugin` package rather
// than an out-of-process RPC plugin system: the eviction hook must
// return an object id resident *in this process's* Object Store on every
// call, which only an in-process function pointer can do without
// marshaling the whole store across a boundary on every eviction.
//
// Note on Go's plugin ABI: a symbol's type assertion against InitHook
// (etc.) only succeeds if the loaded .so was built against the exact
// same version of this package — Go plugin type identity is by package
// path and build, not just by structural shape. This is a sharp edge of
// the stdlib plugin package, not something this code works around.
package pluginpolicy

import (
	"fmt"
	"plugin"

	"github.com/go-cachesim/cachesim/paramconfig"
	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("plugin", func() policy.Policy { return &PluginCache{} })
}

// CommonParams is the common_params shape passed to CacheInitHook across
// the plugin boundary, mirroring store.CommonParams.
type CommonParams struct {
	CapacityBytes       uint64
	DefaultTTL          int64
	ConsiderObjMetadata bool
}

// Request is the req shape passed to the hit/miss/eviction hooks,
// mirroring request.Request.
type Request struct {
	ObjID uint64
	Size  uint64
	Time  int64
}

// PolicyData is the opaque handle a plugin's CacheInitHook returns and
// every other hook receives back. The core never inspects it.
type PolicyData any

// Hook types a plugin's .so must export as package-level functions named
// CacheInitHook, CacheHitHook, CacheMissHook, CacheEvictionHook,
// CacheRemoveHook and CacheFreeHook (spec §4.6).
type (
	InitHook     func(common CommonParams) PolicyData
	HitHook      func(data PolicyData, req Request)
	MissHook     func(data PolicyData, req Request)
	EvictionHook func(data PolicyData, req Request) uint64
	RemoveHook   func(data PolicyData, objID uint64)
	FreeHook     func(data PolicyData)
)

// PluginCache is the Policy implementation.
type PluginCache struct {
	store  *store.ObjectStore
	handle *plugin.Plugin
	data   PolicyData

	hit      HitHook
	miss     MissHook
	eviction EvictionHook
	remove   RemoveHook
	free     FreeHook

	cacheName string
}

func (p *PluginCache) Init(s *store.ObjectStore, common store.CommonParams, paramStr string) error {
	raw, err := paramconfig.ParseParams(paramStr)
	if err != nil {
		return &policy.ConfigError{Key: "policy_params", Reason: err.Error()}
	}

	path := raw["plugin-path"]
	if path == "" {
		return &policy.PluginError{Path: path, Reason: "plugin-path is required and must be non-empty"}
	}
	p.cacheName = raw["cache-name"]

	handle, err := plugin.Open(path)
	if err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}

	initHook, err := lookupHook[InitHook](handle, "CacheInitHook")
	if err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}
	if p.hit, err = lookupHook[HitHook](handle, "CacheHitHook"); err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}
	if p.miss, err = lookupHook[MissHook](handle, "CacheMissHook"); err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}
	if p.eviction, err = lookupHook[EvictionHook](handle, "CacheEvictionHook"); err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}
	if p.remove, err = lookupHook[RemoveHook](handle, "CacheRemoveHook"); err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}
	if p.free, err = lookupHook[FreeHook](handle, "CacheFreeHook"); err != nil {
		return &policy.PluginError{Path: path, Reason: err.Error()}
	}

	p.store = s
	p.handle = handle
	p.data = initHook(CommonParams{
		CapacityBytes:       common.CapacityBytes,
		DefaultTTL:          common.DefaultTTL,
		ConsiderObjMetadata: common.ConsiderObjMetadata,
	})
	return nil
}

// lookupHook resolves name in handle and type-asserts it to T, wrapping
// both failure modes (missing symbol, wrong-typed symbol) into the same
// fatal-at-init error the spec requires.
func lookupHook[T any](handle *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := handle.Lookup(name)
	if err != nil {
		return zero, fmt.Errorf("missing symbol %s: %w", name, err)
	}
	hook, ok := sym.(T)
	if !ok {
		return zero, fmt.Errorf("symbol %s has the wrong type", name)
	}
	return hook, nil
}

// Free calls the plugin's teardown hook before dropping our reference to
// the module handle. Go's plugin package has no explicit unload, so
// "closing the module handle last" is realized purely by ordering: the
// free hook always runs first.
func (p *PluginCache) Free() {
	if p.free != nil && p.data != nil {
		p.free(p.data)
	}
	p.data = nil
	p.handle = nil
}

func toHookRequest(req request.Request) Request {
	return Request{ObjID: req.ObjID, Size: req.Size, Time: req.Time}
}

// Find uses the Object Store directly (no hook per spec §4.6) and then
// notifies the plugin of the outcome. The miss hook runs before any
// insert: per spec "expected to call insert ... through the top-level
// loop," the actual admission and eviction decisions stay with
// cachecore's Get flow calling this policy's own Insert/Evict — the miss
// hook's role here is the plugin's chance to update its own internal
// bookkeeping (e.g. push the soon-to-be-resident object onto its own
// MRU end) before that insert happens.
func (p *PluginCache) Find(req request.Request, update bool) (*store.Record, bool) {
	rec, ok := p.store.Find(req, update)
	if !update {
		return rec, ok
	}
	hr := toHookRequest(req)
	if ok {
		p.hit(p.data, hr)
	} else {
		p.miss(p.data, hr)
	}
	return rec, ok
}

func (p *PluginCache) Insert(req request.Request) (*store.Record, bool) {
	rec := p.store.Insert(req)
	return rec, true
}

// Evict asks the plugin to pick a victim and removes it, per spec §4.6's
// "fail fatally if the returned id is not resident."
func (p *PluginCache) Evict(req request.Request) error {
	victim := p.eviction(p.data, toHookRequest(req))
	if _, resident := p.store.Peek(victim); !resident {
		return &policy.InvariantViolation{
			Detail: fmt.Sprintf("pluginpolicy: eviction hook selected non-resident object %d", victim),
		}
	}
	p.store.Remove(victim)
	return nil
}

func (p *PluginCache) ToEvict(_ request.Request) (*store.Record, bool, error) {
	return nil, false, policy.ErrNotSupported
}

func (p *PluginCache) Remove(objID uint64) bool {
	resident := p.store.Remove(objID)
	if p.remove != nil {
		p.remove(p.data, objID)
	}
	return resident
}

func (p *PluginCache) CanInsert(req request.Request) bool {
	return p.store.Admits(req)
}

func (p *PluginCache) Name() string {
	if p.cacheName != "" {
		return p.cacheName
	}
	return "plugin"
}
