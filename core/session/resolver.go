// Package session resolves provider sessions into application identities:
// the authenticated account plus the profile holding its role.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
)

// metric labels
const (
	healHealed   = "healed"
	healMissing  = "missing"
	healFailed   = "failed"
	healFaulted  = "configuration-fault"
	healPromoted = "first-admin"

	loginSuccess = "success"
	loginDenied  = "invalid-credentials"
	loginNoProf  = "profile-missing"
	loginErrored = "error"
)

const (
	profileMsg    = "no profile exists for this account, please contact your school administration"
	signInFailMsg = "signing in"
)

// ResolvedIdentity is the application's view of who is signed in.
// Session is never set without Profile.
type ResolvedIdentity struct {
	Session *identity.Session
	Profile *user.Profile
	Loading bool
	// Err is the reason the last resolution produced no identity, if any.
	Err error
}

// CurrentUser returns the profile of the signed-in user, or nil.
func (ri ResolvedIdentity) CurrentUser() *user.Profile {
	if ri.Session == nil || ri.Profile == nil {
		return nil
	}
	return ri.Profile
}

type Options struct {
	// SelfHeal synthesizes a missing profile during resolution.
	SelfHeal bool
	// PromoteFirstAdmin makes the first synthesized profile an admin when no admin exists.
	PromoteFirstAdmin bool
	Recorder          core.Recorder
	// Flight collapses profile fetches of the same UID across resolvers sharing it.
	// A resolver without one only collapses its own.
	Flight *singleflight.Group
}

// Resolver is the single writer of a ResolvedIdentity.
type Resolver struct {
	client   identity.Client
	profiles user.Repository
	logger   core.Logger
	rec      core.Recorder
	opts     Options

	// collapses concurrent profile fetches (and self-heals) of the same UID
	flight *singleflight.Group

	mu          sync.RWMutex
	state       ResolvedIdentity
	subs        map[int]func(ResolvedIdentity)
	nextSub     int
	started     bool
	unsubscribe func()

	qmu    sync.Mutex
	queue  []identity.Event
	notify chan struct{}

	stopOnce sync.Once
	done     chan struct{}
	exited   chan struct{}
}

func NewResolver(client identity.Client, profiles user.Repository, logger core.Logger, opts Options) *Resolver {
	rec := opts.Recorder
	if rec == nil {
		rec = core.NopRecorder
	}
	flight := opts.Flight
	if flight == nil {
		flight = new(singleflight.Group)
	}
	return &Resolver{
		client:   client,
		profiles: profiles,
		logger:   logger,
		rec:      rec,
		opts:     opts,
		flight:   flight,
		state:    ResolvedIdentity{Loading: true},
		subs:     make(map[int]func(ResolvedIdentity)),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start subscribes to the provider's session changes. Events are handled one at a time, in order.
func (r *Resolver) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.loop(ctx)

	unsub := r.client.OnChange(r.enqueue)
	r.mu.Lock()
	r.unsubscribe = unsub
	r.mu.Unlock()
}

// Stop unsubscribes from the provider and waits for the event loop to exit.
func (r *Resolver) Stop() {
	r.stopOnce.Do(func() {
		r.mu.RLock()
		unsub, started := r.unsubscribe, r.started
		r.mu.RUnlock()

		if unsub != nil {
			unsub()
		}
		close(r.done)
		if started {
			<-r.exited
		}
	})
}

// enqueue never blocks: the provider may notify from within SignOut called by the loop itself.
func (r *Resolver) enqueue(ev identity.Event) {
	r.qmu.Lock()
	r.queue = append(r.queue, ev)
	r.qmu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Resolver) dequeue() (identity.Event, bool) {
	r.qmu.Lock()
	defer r.qmu.Unlock()

	if len(r.queue) == 0 {
		return identity.Event{}, false
	}
	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, true
}

func (r *Resolver) loop(ctx context.Context) {
	defer close(r.exited)
	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-r.notify:
		}
		for {
			ev, ok := r.dequeue()
			if !ok {
				break
			}
			r.OnSessionEvent(ctx, ev)
		}
	}
}

// OnSessionEvent folds one provider notification into the resolved identity.
func (r *Resolver) OnSessionEvent(ctx context.Context, ev identity.Event) {
	if ev.Kind == identity.EventSignedOut || ev.Session == nil {
		next := ResolvedIdentity{}
		if cur := r.Current(); cur.Session == nil {
			next.Err = cur.Err // keep the reason of a forced sign-out
		}
		r.publish(next)
		return
	}

	sess := ev.Session
	cur := r.Current()
	if cur.Session == nil || cur.Session.UID != sess.UID {
		r.publish(ResolvedIdentity{Loading: true})
	}

	p, err := r.FetchProfile(ctx, sess)
	if !r.isCurrent(sess) {
		return // superseded by a later sign-out or sign-in
	}

	switch {
	case err != nil:
		r.logger.Error("resolving profile", err, map[string]interface{}{"uid": sess.UID, "event": ev.Kind})
		r.publish(ResolvedIdentity{Err: err})
	case p == nil:
		r.logger.Warn("no profile for session: signing out", map[string]interface{}{"uid": sess.UID, "event": ev.Kind})
		missing := core.NewError(core.KindProfileMissing, profileMsg)
		r.publish(ResolvedIdentity{Err: missing})
		r.teardown(ctx, sess)
	default:
		r.publish(ResolvedIdentity{Session: sess, Profile: p})
	}
}

// FetchProfile loads the profile of sess, synthesizing it once when missing and self-heal is enabled.
// A nil profile with a nil error means the account has no profile.
func (r *Resolver) FetchProfile(ctx context.Context, sess *identity.Session) (*user.Profile, error) {
	if sess == nil {
		return nil, nil
	}
	v, err, _ := r.flight.Do(sess.UID, func() (interface{}, error) {
		return r.fetchProfile(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*user.Profile)
	if p == nil {
		return nil, nil
	}
	cp := *p // shared between collapsed callers
	return &cp, nil
}

func (r *Resolver) fetchProfile(ctx context.Context, sess *identity.Session) (*user.Profile, error) {
	p, err := r.profiles.GetProfile(ctx, sess.UID)
	switch {
	case err == nil:
		return &p, nil
	case !errors.Is(err, user.ErrNotFound):
		return nil, lookupError(err)
	case !r.opts.SelfHeal:
		return nil, nil
	}

	if err := r.selfHeal(ctx, sess); err != nil {
		if core.IsConfigurationFault(err) {
			r.rec.SelfHeal(healFaulted)
			return nil, err
		}
		r.logger.Warn("profile self-heal failed", err, map[string]interface{}{"uid": sess.UID})
		r.rec.SelfHeal(healFailed)
		return nil, nil
	}

	// single retry, never more
	p, err = r.profiles.GetProfile(ctx, sess.UID)
	switch {
	case err == nil:
		r.rec.SelfHeal(healHealed)
		return &p, nil
	case errors.Is(err, user.ErrNotFound):
		r.rec.SelfHeal(healMissing)
		return nil, nil
	case core.IsConfigurationFault(err):
		r.rec.SelfHeal(healFaulted)
		return nil, err
	}
	r.logger.Warn("profile lookup after self-heal failed", err, map[string]interface{}{"uid": sess.UID})
	r.rec.SelfHeal(healFailed)
	return nil, nil
}

func (r *Resolver) selfHeal(ctx context.Context, sess *identity.Session) error {
	role := user.RoleStudent
	if r.opts.PromoteFirstAdmin {
		admins, err := r.profiles.ScanProfiles(ctx, user.Filter{Field: user.FieldRole, Value: string(user.RoleAdmin), Limit: 1})
		if err != nil {
			return errors.Wrap(err, "scanning admin profiles")
		}
		if len(admins) == 0 {
			role = user.RoleAdmin
		}
	}

	p := user.NewProfile(sess.UID, sess.Email, "", role)
	p.Name = p.DisplayName()
	p.IsSystemAdmin = role == user.RoleAdmin
	if _, err := r.profiles.InsertProfile(ctx, p); err != nil {
		if errors.Is(err, user.ErrProfileExists) {
			return nil // created concurrently; the retry will find it
		}
		return errors.Wrap(err, "inserting profile")
	}

	if role == user.RoleAdmin {
		r.rec.SelfHeal(healPromoted)
		r.logger.Info("first admin profile provisioned", p)
	}
	return nil
}

// Login signs in with the provider and resolves the profile.
// A valid credential without a profile is never an authenticated application user.
func (r *Resolver) Login(ctx context.Context, email, password string) (*user.Profile, error) {
	sess, err := r.client.SignIn(ctx, core.CleanString(email, true /* lower */), password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			r.rec.Login(loginDenied)
			return nil, core.NewError(core.KindUnauthenticated, core.CredentialsMessage, err)
		}
		r.rec.Login(loginErrored)
		return nil, core.NewError(core.KindInternal, signInFailMsg, err)
	}

	p, err := r.FetchProfile(ctx, sess)
	if err != nil {
		r.rec.Login(loginErrored)
		r.publish(ResolvedIdentity{Err: err})
		r.teardown(ctx, sess)
		return nil, err
	}
	if p == nil {
		r.rec.Login(loginNoProf)
		missing := core.NewError(core.KindProfileMissing, profileMsg)
		r.publish(ResolvedIdentity{Err: missing})
		r.teardown(ctx, sess)
		return nil, missing
	}

	if r.isCurrent(sess) {
		r.publish(ResolvedIdentity{Session: sess, Profile: p})
	}
	r.rec.Login(loginSuccess)
	return p, nil
}

// Logout signs out with the provider; the identity is cleared once the provider confirms.
func (r *Resolver) Logout(ctx context.Context) error {
	if err := r.client.SignOut(ctx); err != nil {
		return core.NewError(core.KindInternal, "signing out", err)
	}
	r.publish(ResolvedIdentity{})
	return nil
}

// teardown signs out the provider session of sess, unless another principal took over meanwhile.
func (r *Resolver) teardown(ctx context.Context, sess *identity.Session) {
	if !r.isCurrent(sess) {
		return
	}
	if err := r.client.SignOut(ctx); err != nil {
		r.logger.Warn("signing out profile-less session", err, map[string]interface{}{"uid": sess.UID})
	}
}

func (r *Resolver) isCurrent(sess *identity.Session) bool {
	cur := r.client.CurrentSession()
	return cur != nil && cur.UID == sess.UID
}

func lookupError(err error) error {
	if core.IsConfigurationFault(err) {
		return err
	}
	return core.NewError(core.KindInternal, "fetching profile", err)
}
