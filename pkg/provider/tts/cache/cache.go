// Package cache wraps a tts.Provider with a bounded in-memory clip cache.
//
// Practice sessions synthesise the same reference text over and over, once
// per check. The cache keys clips on text, language, voice and speed, keeps
// the most recently used entries, and collapses concurrent requests for the
// same key into a single backend call.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/speakez/pkg/provider/tts"
)

// DefaultSize is the number of clips kept when New is given a size <= 0.
const DefaultSize = 64

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Provider is a caching tts.Provider decorator. It is safe for concurrent use.
type Provider struct {
	next  tts.Provider
	size  int
	group singleflight.Group

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element

	hits, misses int
}

type entry struct {
	key  string
	clip *tts.Audio
}

// New returns a Provider that caches up to size clips from next.
func New(next tts.Provider, size int) *Provider {
	if size <= 0 {
		size = DefaultSize
	}
	return &Provider{
		next:  next,
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Synthesize implements tts.Provider. Failed syntheses are not cached.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	key := cacheKey(text, opts)
	if clip, ok := p.get(key); ok {
		return clip, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if clip, ok := p.peek(key); ok {
			return clip, nil
		}
		clip, err := p.next.Synthesize(ctx, text, opts)
		if err != nil {
			return nil, err
		}
		p.put(key, clip)
		return clip, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tts.Audio), nil
}

// ListVoices forwards to the wrapped provider when it can list voices.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if vl, ok := p.next.(tts.VoiceLister); ok {
		return vl.ListVoices(ctx)
	}
	return nil, nil
}

// Len returns the number of cached clips.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// Stats returns the cache hit and miss counters.
func (p *Provider) Stats() (hits, misses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

func (p *Provider) get(key string) (*tts.Audio, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.items[key]
	if !ok {
		p.misses++
		return nil, false
	}
	p.hits++
	p.order.MoveToFront(el)
	return el.Value.(*entry).clip, true
}

// peek looks up key without touching the counters.
func (p *Provider) peek(key string) (*tts.Audio, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.items[key]; ok {
		return el.Value.(*entry).clip, true
	}
	return nil, false
}

func (p *Provider) put(key string, clip *tts.Audio) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.items[key]; ok {
		el.Value.(*entry).clip = clip
		p.order.MoveToFront(el)
		return
	}
	p.items[key] = p.order.PushFront(&entry{key: key, clip: clip})
	for p.order.Len() > p.size {
		oldest := p.order.Back()
		p.order.Remove(oldest)
		delete(p.items, oldest.Value.(*entry).key)
	}
}

func cacheKey(text string, opts tts.Options) string {
	return opts.Language + "\x00" + opts.Voice + "\x00" + strconv.FormatFloat(opts.Speed, 'g', -1, 64) + "\x00" + text
}
