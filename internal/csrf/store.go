package csrf

import (
	"net/http"
	"sync"
	"time"
)

// Store is the key-value view of a client's cookie jar used by the token service.
type Store interface {
	Get(name string) (string, bool)
	Set(c *http.Cookie)
	Clear(name string)
}

// CookieStore reads cookies from one request and writes them to its response.
// Values written during the request shadow the incoming ones.
type CookieStore struct {
	r       *http.Request
	w       http.ResponseWriter
	written map[string]*http.Cookie
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore binds a store to a request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request) *CookieStore {
	return &CookieStore{r: r, w: w, written: make(map[string]*http.Cookie)}
}

func (s *CookieStore) Get(name string) (string, bool) {
	if c, ok := s.written[name]; ok {
		if c.MaxAge < 0 || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
	c, err := s.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *CookieStore) Set(c *http.Cookie) {
	s.written[c.Name] = c
	http.SetCookie(s.w, c)
}

func (s *CookieStore) Clear(name string) {
	s.Set(&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

// MemoryStore is a map-backed Store for tests and non-HTTP callers.
type MemoryStore struct {
	mu      sync.Mutex
	cookies map[string]http.Cookie
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: make(map[string]http.Cookie), now: time.Now}
}

func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cookies[name]
	if !ok {
		return "", false
	}
	if !c.Expires.IsZero() && !s.now().Before(c.Expires) {
		delete(s.cookies, name)
		return "", false
	}
	return c.Value, true
}

func (s *MemoryStore) Set(c *http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.MaxAge < 0 {
		delete(s.cookies, c.Name)
		return
	}
	s.cookies[c.Name] = *c
}

func (s *MemoryStore) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, name)
}

// Cookie returns a copy of the stored cookie with its attributes.
func (s *MemoryStore) Cookie(name string) (http.Cookie, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cookies[name]
	return c, ok
}
