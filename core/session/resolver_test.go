package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
	inmemdb "github.com/trezcool/sapp/storage/database/inmem"
	testutil "github.com/trezcool/sapp/tests"
)

const password = "secret1"

// fakeClient is a provider with fixed credentials: every account's password is "secret1".
type fakeClient struct {
	mu        sync.Mutex
	sess      *identity.Session
	accounts  map[string]string // {email: uid}
	listeners map[int]identity.Listener
	next      int
	signOuts  int
}

func newFakeClient(accounts map[string]string) *fakeClient {
	return &fakeClient{accounts: accounts, listeners: make(map[int]identity.Listener)}
}

func (c *fakeClient) SignIn(_ context.Context, email, pwd string) (*identity.Session, error) {
	uid, ok := c.accounts[email]
	if !ok || pwd != password {
		return nil, identity.ErrInvalidCredentials
	}
	sess := &identity.Session{UID: uid, Email: email, Token: "token-" + uid}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

func (c *fakeClient) SignOut(context.Context) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return nil
	}
	c.sess = nil
	c.signOuts++
	c.mu.Unlock()
	c.emit(identity.Event{Kind: identity.EventSignedOut})
	return nil
}

func (c *fakeClient) CurrentSession() *identity.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *fakeClient) OnChange(fn identity.Listener) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	sess := c.sess
	c.mu.Unlock()

	fn(identity.Event{Kind: identity.EventInitialRestore, Session: sess})
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *fakeClient) restore(uid, email string) {
	c.mu.Lock()
	c.sess = &identity.Session{UID: uid, Email: email}
	c.mu.Unlock()
}

func (c *fakeClient) emit(ev identity.Event) {
	c.mu.Lock()
	listeners := make([]identity.Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (c *fakeClient) signOutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signOuts
}

// hookedRepo injects failures into an in-memory profile store.
type hookedRepo struct {
	user.Repository

	mu        sync.Mutex
	gets      int
	inserts   int
	getErr    error
	insertErr error
	scanErr   error
}

func (r *hookedRepo) GetProfile(ctx context.Context, uid string) (user.Profile, error) {
	r.mu.Lock()
	r.gets++
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return user.Profile{}, err
	}
	return r.Repository.GetProfile(ctx, uid)
}

func (r *hookedRepo) InsertProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	r.mu.Lock()
	r.inserts++
	err := r.insertErr
	r.mu.Unlock()
	if err != nil {
		return user.Profile{}, err
	}
	return r.Repository.InsertProfile(ctx, p)
}

func (r *hookedRepo) ScanProfiles(ctx context.Context, filter user.Filter) ([]user.Profile, error) {
	if r.scanErr != nil {
		return nil, r.scanErr
	}
	return r.Repository.ScanProfiles(ctx, filter)
}

type countingRecorder struct {
	mu     sync.Mutex
	heals  map[string]int
	logins map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{heals: make(map[string]int), logins: make(map[string]int)}
}

func (r *countingRecorder) Login(result string) {
	r.mu.Lock()
	r.logins[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) SelfHeal(outcome string) {
	r.mu.Lock()
	r.heals[outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) AdminOp(string, core.Kind) {}

var errBackend = errors.New("connection reset by peer")

func newResolver(t *testing.T, client identity.Client, repo user.Repository, opts Options) *Resolver {
	t.Helper()
	r := NewResolver(client, repo, testutil.NewLogger(nil), opts)
	t.Cleanup(r.Stop)
	return r
}

func TestResolver_FetchProfile(t *testing.T) {
	configFault := core.NewError(core.KindConfigurationFault, "missing table")
	heal := Options{SelfHeal: true, PromoteFirstAdmin: true}

	tests := []struct {
		name        string
		opts        Options
		existing    []user.Role // profiles present before the fetch; the first belongs to the caller
		hook        func(r *hookedRepo)
		wantRole    user.Role // empty: no profile
		wantKind    core.Kind
		wantGets    int
		wantInserts int
		wantHeal    string
	}{
		{name: "existing profile", opts: heal, existing: []user.Role{user.RoleTeacher}, wantRole: user.RoleTeacher, wantGets: 1},
		{name: "missing, no self-heal", wantGets: 1},
		{name: "first account becomes admin", opts: heal, wantRole: user.RoleAdmin, wantGets: 2, wantInserts: 1, wantHeal: healPromoted},
		{
			name:        "later accounts become students",
			opts:        heal,
			existing:    []user.Role{"", user.RoleAdmin},
			wantRole:    user.RoleStudent,
			wantGets:    2,
			wantInserts: 1,
			wantHeal:    healHealed,
		},
		{
			name:        "promotion disabled",
			opts:        Options{SelfHeal: true},
			wantRole:    user.RoleStudent,
			wantGets:    2,
			wantInserts: 1,
			wantHeal:    healHealed,
		},
		{
			name:     "configuration fault on lookup",
			opts:     heal,
			hook:     func(r *hookedRepo) { r.getErr = configFault },
			wantKind: core.KindConfigurationFault,
			wantGets: 1,
		},
		{
			name:     "backend error on lookup",
			opts:     heal,
			hook:     func(r *hookedRepo) { r.getErr = errBackend },
			wantKind: core.KindInternal,
			wantGets: 1,
		},
		{
			name:     "configuration fault on admin scan",
			opts:     heal,
			hook:     func(r *hookedRepo) { r.scanErr = configFault },
			wantKind: core.KindConfigurationFault,
			wantGets: 1,
			wantHeal: healFaulted,
		},
		{
			name:        "failed self-heal gives up",
			opts:        heal,
			hook:        func(r *hookedRepo) { r.insertErr = errBackend },
			wantGets:    1,
			wantInserts: 1,
			wantHeal:    healFailed,
		},
		{
			name:        "healed profile still missing: a single retry",
			opts:        heal,
			hook:        func(r *hookedRepo) { r.insertErr = user.ErrProfileExists },
			wantGets:    2,
			wantInserts: 1,
			wantHeal:    healMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := &hookedRepo{Repository: inmemdb.NewProfileRepository(inmemdb.NewDB())}
			for i, role := range tt.existing {
				if role == "" {
					continue
				}
				uid := "other"
				if i == 0 {
					uid = "u1"
				}
				testutil.CreateProfile(t, repo.Repository, uid, uid+"@school.io", "", role, "s1")
			}
			if tt.hook != nil {
				tt.hook(repo)
			}
			rec := newCountingRecorder()
			tt.opts.Recorder = rec
			r := newResolver(t, newFakeClient(nil), repo, tt.opts)

			p, err := r.FetchProfile(ctx, &identity.Session{UID: "u1", Email: "u1@school.io"})

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, core.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			if tt.wantRole == "" {
				assert.Nil(t, p)
			} else {
				require.NotNil(t, p)
				assert.Equal(t, tt.wantRole, p.Role)
				assert.Equal(t, "u1", p.UID)
				assert.Equal(t, tt.wantRole == user.RoleAdmin && tt.wantInserts > 0, p.IsSystemAdmin)
			}
			assert.Equal(t, tt.wantGets, repo.gets, "GetProfile calls")
			assert.Equal(t, tt.wantInserts, repo.inserts, "InsertProfile calls")
			if tt.wantHeal != "" {
				assert.Equal(t, 1, rec.heals[tt.wantHeal], rec.heals)
			}
		})
	}
}

func TestResolver_FetchProfile_concurrent(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewProfileRepository(inmemdb.NewDB())
	r := newResolver(t, newFakeClient(nil), repo, Options{SelfHeal: true, PromoteFirstAdmin: true})

	var wg sync.WaitGroup
	results := make([]*user.Profile, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.FetchProfile(ctx, &identity.Session{UID: "u1", Email: "u1@school.io"})
			if err != nil {
				t.Errorf("FetchProfile() error = %v", err)
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, user.RoleAdmin, p.Role)
	}
	profiles, err := repo.ScanProfiles(ctx, user.Filter{})
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

// gatedRepo holds the first GetProfile until release is closed.
type gatedRepo struct {
	user.Repository

	mu      sync.Mutex
	gets    int
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) GetProfile(ctx context.Context, uid string) (user.Profile, error) {
	r.mu.Lock()
	r.gets++
	first := r.gets == 1
	r.mu.Unlock()
	if first {
		close(r.entered)
		<-r.release
	}
	return r.Repository.GetProfile(ctx, uid)
}

func TestResolver_FetchProfile_sharedFlight(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.NewDB()
	testutil.CreateProfile(t, inmemdb.NewProfileRepository(db), "u1", "u1@school.io", "Teacher One", user.RoleTeacher, "s1")
	repo := &gatedRepo{
		Repository: inmemdb.NewProfileRepository(db),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}

	opts := Options{Flight: new(singleflight.Group)}
	first, second := newResolver(t, newFakeClient(nil), repo, opts), newResolver(t, newFakeClient(nil), repo, opts)
	sess := &identity.Session{UID: "u1", Email: "u1@school.io"}

	var wg sync.WaitGroup
	results := make([]*user.Profile, 2)
	for i, r := range []*Resolver{first, second} {
		if i == 1 {
			<-repo.entered
		}
		wg.Add(1)
		go func(i int, r *Resolver) {
			defer wg.Done()
			p, err := r.FetchProfile(ctx, sess)
			if err != nil {
				t.Errorf("FetchProfile() error = %v", err)
			}
			results[i] = p
		}(i, r)
	}
	time.Sleep(50 * time.Millisecond) // let the second call join the flight
	close(repo.release)
	wg.Wait()

	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, "u1", p.UID)
	}
	assert.Equal(t, 1, repo.gets)
}

func TestResolver_Login(t *testing.T) {
	ctx := context.Background()
	accounts := map[string]string{"teacher@school.io": "t1", "ghost@school.io": "g1"}

	newEnv := func(t *testing.T, opts Options) (*Resolver, *fakeClient, *countingRecorder) {
		repo := inmemdb.NewProfileRepository(inmemdb.NewDB())
		testutil.CreateProfile(t, repo, "t1", "teacher@school.io", "Teacher", user.RoleTeacher, "s1")
		client := newFakeClient(accounts)
		rec := newCountingRecorder()
		opts.Recorder = rec
		return newResolver(t, client, repo, opts), client, rec
	}

	t.Run("success", func(t *testing.T) {
		r, client, rec := newEnv(t, Options{})
		p, err := r.Login(ctx, " Teacher@School.io ", password)
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, p.Role)

		cur := r.Current()
		require.NotNil(t, cur.Session)
		require.NotNil(t, cur.CurrentUser())
		assert.Equal(t, "t1", cur.CurrentUser().UID)
		assert.Equal(t, 0, client.signOutCount())
		assert.Equal(t, 1, rec.logins[loginSuccess])
	})

	t.Run("wrong password", func(t *testing.T) {
		r, client, rec := newEnv(t, Options{})
		_, err := r.Login(ctx, "teacher@school.io", "secret2")
		require.Error(t, err)
		assert.Equal(t, core.KindUnauthenticated, core.KindOf(err))
		assert.Equal(t, core.CredentialsMessage, core.UserMessage(err))
		assert.Nil(t, client.CurrentSession())
		assert.Equal(t, 1, rec.logins[loginDenied])
	})

	t.Run("profile missing signs out", func(t *testing.T) {
		r, client, rec := newEnv(t, Options{})
		p, err := r.Login(ctx, "ghost@school.io", password)
		require.Error(t, err)
		assert.Nil(t, p)
		assert.Equal(t, core.KindProfileMissing, core.KindOf(err))

		assert.Nil(t, client.CurrentSession())
		assert.Equal(t, 1, client.signOutCount())
		cur := r.Current()
		assert.Nil(t, cur.Session)
		assert.Nil(t, cur.CurrentUser())
		assert.True(t, core.IsKind(cur.Err, core.KindProfileMissing))
		assert.Equal(t, 1, rec.logins[loginNoProf])
	})

	t.Run("profile missing, healed", func(t *testing.T) {
		r, client, _ := newEnv(t, Options{SelfHeal: true, PromoteFirstAdmin: true})
		p, err := r.Login(ctx, "ghost@school.io", password)
		require.NoError(t, err)
		// an admin-less store promotes the healed profile
		assert.Equal(t, user.RoleAdmin, p.Role)
		assert.NotNil(t, client.CurrentSession())
	})

	t.Run("logout", func(t *testing.T) {
		r, client, _ := newEnv(t, Options{})
		_, err := r.Login(ctx, "teacher@school.io", password)
		require.NoError(t, err)

		require.NoError(t, r.Logout(ctx))
		assert.Nil(t, client.CurrentSession())
		assert.Nil(t, r.Current().Session)
		assert.Nil(t, r.Current().Err)
	})
}

// waitFor returns the first published identity satisfying cond.
func waitFor(t *testing.T, r *Resolver, cond func(ResolvedIdentity) bool) ResolvedIdentity {
	t.Helper()
	ch := make(chan ResolvedIdentity, 16)
	unsubscribe := r.Subscribe(func(ri ResolvedIdentity) {
		if cond(ri) {
			select {
			case ch <- ri:
			default:
			}
		}
	})
	defer unsubscribe()

	if cur := r.Current(); cond(cur) {
		return cur
	}
	select {
	case ri := <-ch:
		return ri
	case <-time.After(2 * time.Second):
		t.Fatalf("identity never settled; current = %+v", r.Current())
	}
	return ResolvedIdentity{}
}

func TestResolver_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("restored session resolves its profile", func(t *testing.T) {
		repo := inmemdb.NewProfileRepository(inmemdb.NewDB())
		testutil.CreateProfile(t, repo, "t1", "teacher@school.io", "Teacher", user.RoleTeacher, "s1")
		client := newFakeClient(map[string]string{"teacher@school.io": "t1"})
		client.restore("t1", "teacher@school.io")

		r := newResolver(t, client, repo, Options{})
		assert.True(t, r.Current().Loading)
		r.Start(ctx)

		ri, err := r.Wait(ctx)
		require.NoError(t, err)
		require.NotNil(t, ri.CurrentUser())
		assert.Equal(t, user.RoleTeacher, ri.Profile.Role)

		// provider-side sign-out clears the identity
		require.NoError(t, client.SignOut(ctx))
		ri = waitFor(t, r, func(ri ResolvedIdentity) bool { return ri.Session == nil && !ri.Loading })
		assert.Nil(t, ri.Profile)
	})

	t.Run("no session", func(t *testing.T) {
		r := newResolver(t, newFakeClient(nil), inmemdb.NewProfileRepository(inmemdb.NewDB()), Options{})
		r.Start(ctx)
		ri, err := r.Wait(ctx)
		require.NoError(t, err)
		assert.Nil(t, ri.Session)
		assert.Nil(t, ri.Err)
	})

	t.Run("restored session without a profile is torn down", func(t *testing.T) {
		client := newFakeClient(nil)
		client.restore("g1", "ghost@school.io")

		r := newResolver(t, client, inmemdb.NewProfileRepository(inmemdb.NewDB()), Options{})
		r.Start(ctx)

		ri := waitFor(t, r, func(ri ResolvedIdentity) bool { return !ri.Loading && ri.Err != nil })
		assert.Nil(t, ri.Session)
		assert.True(t, core.IsKind(ri.Err, core.KindProfileMissing))

		// the sign-out that follows keeps the reason
		waitFor(t, r, func(ResolvedIdentity) bool { return client.signOutCount() == 1 })
		assert.Nil(t, client.CurrentSession())
		assert.True(t, core.IsKind(r.Current().Err, core.KindProfileMissing))
	})

	t.Run("configuration fault keeps the provider session", func(t *testing.T) {
		client := newFakeClient(nil)
		client.restore("t1", "teacher@school.io")
		repo := &hookedRepo{
			Repository: inmemdb.NewProfileRepository(inmemdb.NewDB()),
			getErr:     core.NewError(core.KindConfigurationFault, "permission denied on users"),
		}

		r := newResolver(t, client, repo, Options{SelfHeal: true})
		r.Start(ctx)

		ri, err := r.Wait(ctx)
		require.NoError(t, err)
		assert.Nil(t, ri.Session)
		assert.True(t, core.IsConfigurationFault(ri.Err))
		assert.NotNil(t, client.CurrentSession())
		assert.Equal(t, 0, client.signOutCount())
	})
}

func TestResolver_Stop(t *testing.T) {
	r := NewResolver(newFakeClient(nil), inmemdb.NewProfileRepository(inmemdb.NewDB()), testutil.NewLogger(nil), Options{})
	r.Stop() // never started
	r.Stop()

	r = NewResolver(newFakeClient(nil), inmemdb.NewProfileRepository(inmemdb.NewDB()), testutil.NewLogger(nil), Options{})
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}
