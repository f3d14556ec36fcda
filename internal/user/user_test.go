package user

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Alice", "alice", true},
		{"  Alice   Smith  ", "alice smith", true},
		{"MiXeD CaSe", "mixed case", true},
		{"", "", false},
		{"   ", "", false},
		{"with@at", "", false},
		{"with#hash", "", false},
		{"with/slash", "", false},
		{"with[bracket", "", false},
		{"control\x00char", "", false},
		{"tab\tinside", "tab inside", true},
	}
	for _, c := range cases {
		got, ok := Canonicalize(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Canonicalize(%q) = (%q, %v), se esperaba (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCanonicalizeLongName(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if _, ok := Canonicalize(string(long)); ok {
		t.Fatal("un nombre de 256 bytes debería rechazarse")
	}
}

func TestMemStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	u := &User{Name: "Alice", CanonicalName: "alice"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("Create debería asignar un ID")
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("Create debería sellar CreatedAt")
	}

	got, err := s.GetByName(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.ID != u.ID || got.Name != "Alice" {
		t.Fatalf("GetByName = %+v", got)
	}

	byID, err := s.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.CanonicalName != "alice" {
		t.Fatalf("GetByID = %+v", byID)
	}

	if err := s.Create(ctx, &User{Name: "alice", CanonicalName: "alice"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicado: err = %v, se esperaba ErrExists", err)
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	u := &User{Name: "Alice", CanonicalName: "alice"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.GetByName(ctx, "alice")
	got.Language = "mutado"

	again, _ := s.GetByName(ctx, "alice")
	if again.Language == "mutado" {
		t.Fatal("mutar el resultado no debería tocar el registro guardado")
	}
}

func TestMemStoreSaveOptions(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	u := &User{Name: "Alice", CanonicalName: "alice"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u.Language = "es"
	u.Variant = "es-AR"
	u.Token = "tok-1"
	if err := s.SaveOptions(ctx, u); err != nil {
		t.Fatalf("SaveOptions: %v", err)
	}

	got, _ := s.GetByID(ctx, u.ID)
	if got.Language != "es" || got.Variant != "es-AR" || got.Token != "tok-1" {
		t.Fatalf("opciones no persistidas: %+v", got)
	}

	if err := s.SaveOptions(ctx, &User{ID: "inexistente"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveOptions fantasma: err = %v", err)
	}
}

func TestMemStoreCredentials(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if _, err := s.GetCredential(ctx, "alice", "local-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("credencial inexistente: err = %v", err)
	}
	if err := s.SetCredential(ctx, "alice", "local-password", "phc-1"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	got, err := s.GetCredential(ctx, "alice", "local-password")
	if err != nil || got != "phc-1" {
		t.Fatalf("GetCredential = (%q, %v)", got, err)
	}
	if err := s.DeleteCredential(ctx, "alice", "local-password"); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if _, err := s.GetCredential(ctx, "alice", "local-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tras borrar: err = %v", err)
	}
}

func TestRegistered(t *testing.T) {
	var nilUser *User
	if nilUser.Registered() {
		t.Fatal("nil no puede estar registrado")
	}
	if (&User{}).Registered() {
		t.Fatal("sin ID no hay registro")
	}
	if !(&User{ID: "x"}).Registered() {
		t.Fatal("con ID debería estar registrado")
	}
}

// latestCountingStore cuenta las lecturas fuertes para verificar el doble
// camino del Lookup.
type latestCountingStore struct {
	*MemStore

	mu      sync.Mutex
	latest  int
	entered chan struct{}
	release chan struct{}
}

func (s *latestCountingStore) GetByNameLatest(ctx context.Context, canonical string) (*User, error) {
	s.mu.Lock()
	s.latest++
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.MemStore.GetByNameLatest(ctx, canonical)
}

func TestLookupByNameAuthoritativeFallsBack(t *testing.T) {
	ctx := context.Background()
	cs := &latestCountingStore{MemStore: NewMemStore()}
	l := NewLookup(cs)

	if _, err := l.ByNameAuthoritative(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("miss total: err = %v", err)
	}
	if cs.latest != 1 {
		t.Fatalf("lecturas fuertes = %d, se esperaba 1", cs.latest)
	}

	u := &User{Name: "Alice", CanonicalName: "alice"}
	if err := cs.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := l.ByNameAuthoritative(ctx, "alice")
	if err != nil {
		t.Fatalf("ByNameAuthoritative: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("usuario equivocado: %+v", got)
	}
	// La lectura barata alcanzó: no hubo segunda lectura fuerte.
	if cs.latest != 1 {
		t.Fatalf("lecturas fuertes = %d, se esperaba 1", cs.latest)
	}
}

func TestLookupCollapsesConcurrentStrongReads(t *testing.T) {
	ctx := context.Background()
	cs := &latestCountingStore{
		MemStore: NewMemStore(),
		entered:  make(chan struct{}, 16),
		release:  make(chan struct{}),
	}
	l := NewLookup(cs)

	var wg sync.WaitGroup
	var first error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, first = l.ByNameAuthoritative(ctx, "alice")
	}()
	// Esperar a que el primero esté adentro de la lectura fuerte.
	<-cs.entered

	const extra = 7
	errs := make([]error, extra)
	for i := 0; i < extra; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.ByNameAuthoritative(ctx, "alice")
		}(i)
	}
	// Dejar que el resto se cuelgue del vuelo en curso antes de soltarlo.
	time.Sleep(20 * time.Millisecond)
	close(cs.release)
	wg.Wait()

	if !errors.Is(first, ErrNotFound) {
		t.Fatalf("primer caller: err = %v", first)
	}
	for i, err := range errs {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("caller %d: err = %v", i, err)
		}
	}
	cs.mu.Lock()
	latest := cs.latest
	cs.mu.Unlock()
	if latest != 1 {
		t.Fatalf("lecturas fuertes = %d, el singleflight debería colapsarlas en una", latest)
	}
}
