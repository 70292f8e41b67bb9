package relay

import (
	"context"
	stderrors "errors"
	"fmt"

	"igrelay/internal/downloader"
	"igrelay/pkg/accounts"
	"igrelay/pkg/config"
	"igrelay/pkg/errors"
	"igrelay/pkg/instagram"
	"igrelay/pkg/link"
	"igrelay/pkg/logger"
	"igrelay/pkg/ratelimit"
	"igrelay/pkg/retry"
	"igrelay/pkg/storage"
)

// Relay turns a parsed link target into staged media files ready to send.
// It owns client selection: a chat's own logged-in client wins, then a
// rotation pool account, then an anonymous client as the last resort.
type Relay struct {
	cfg      *config.Config
	pool     *accounts.Manager
	sessions *instagram.SessionStore
	staging  *storage.Manager
	limiter  ratelimit.Limiter
	logger   logger.Logger
}

// Request is one fetch on behalf of a chat
type Request struct {
	Target link.Target

	// ChatClient is the requesting chat's own logged-in client, nil when
	// the chat never logged in.
	ChatClient *instagram.Client
}

// Delivery holds staged media for sending. The caller must call Cleanup once
// the media has been sent (or sending failed).
type Delivery struct {
	Owner   string
	Caption string
	Media   []storage.Media
	Kinds   []instagram.MediaKind

	dir *storage.RequestDir
}

// Cleanup removes the staging directory behind the delivery
func (d *Delivery) Cleanup() {
	if d.dir != nil {
		d.dir.Cleanup()
	}
}

// New creates a relay
func New(
	cfg *config.Config,
	pool *accounts.Manager,
	sessions *instagram.SessionStore,
	staging *storage.Manager,
	limiter ratelimit.Limiter,
	log logger.Logger,
) *Relay {
	return &Relay{
		cfg:      cfg,
		pool:     pool,
		sessions: sessions,
		staging:  staging,
		limiter:  limiter,
		logger:   log,
	}
}

// Fetch resolves the target and downloads its media into a staging directory
func (r *Relay) Fetch(ctx context.Context, req Request) (*Delivery, error) {
	client := r.pickClient(ctx, req)

	switch req.Target.Kind {
	case link.KindStories:
		return r.fetchStories(ctx, client, req.Target.Username)
	case link.KindPost, link.KindReel:
		return r.fetchPost(ctx, client, req.Target.Shortcode)
	default:
		return nil, errors.New(errors.ErrorTypeParsing, "unrecognized link target", 0)
	}
}

// pickClient chooses which Instagram client serves the request
func (r *Relay) pickClient(ctx context.Context, req Request) *instagram.Client {
	if req.ChatClient != nil {
		return req.ChatClient
	}

	if client := r.poolClient(ctx); client != nil {
		return client
	}

	// Anonymous clients can still reach public posts
	return instagram.NewClient(&r.cfg.Instagram, r.logger)
}

// poolClient logs in a rotation pool account, reusing its saved session when
// one exists. Returns nil when no account can serve.
func (r *Relay) poolClient(ctx context.Context) *instagram.Client {
	account, err := r.pool.Acquire()
	if err != nil {
		if !stderrors.Is(err, accounts.ErrNoAccounts) {
			r.logger.WithError(err).Warn("rotation pool has no usable account")
		}
		return nil
	}

	client := instagram.NewClient(&r.cfg.Instagram, r.logger)

	restored, err := r.sessions.Restore(client, account.Username)
	if err != nil {
		r.logger.WithError(err).Warn("failed to restore pool account session")
	}
	if restored {
		return client
	}

	loginCfg := retry.FromConfig(&r.cfg.Retry).WithContext(ctx)
	loginCfg.RetryIf = retryIfNotChallenge
	err = retry.Do(func() error {
		r.waitLimiter()
		return client.Login(ctx, account.Username, account.Password)
	}, loginCfg)
	if err != nil {
		var challenge *instagram.ChallengeError
		if stderrors.As(err, &challenge) {
			// A challenged pool account is useless until an operator
			// clears the checkpoint; bench it.
			r.logger.WarnWithFields("pool account challenged, banning", map[string]interface{}{
				"username": account.Username,
			})
			_ = r.pool.Ban(account.Username)
		} else {
			r.logger.WithError(err).WithField("username", account.Username).
				Warn("pool account login failed")
		}
		return nil
	}

	if err := r.sessions.Save(client); err != nil {
		r.logger.WithError(err).Warn("failed to save pool account session")
	}
	return client
}

// retryIfNotChallenge retries transient failures but never verification
// challenges, which need a human.
func retryIfNotChallenge(err error) bool {
	var challenge *instagram.ChallengeError
	if stderrors.As(err, &challenge) {
		return false
	}
	return retry.DefaultRetryIf(err)
}

// fetchStories downloads all active stories of a username
func (r *Relay) fetchStories(ctx context.Context, client *instagram.Client, username string) (*Delivery, error) {
	retryCfg := retry.FromConfig(&r.cfg.Retry).WithContext(ctx)

	profile, err := retry.DoWithResult(func() (*instagram.Profile, error) {
		r.waitLimiter()
		return client.FetchProfile(ctx, username)
	}, retryCfg)
	if err != nil {
		return nil, err
	}

	if profile.IsPrivate && !client.IsAuthenticated() {
		return nil, errors.New(errors.ErrorTypePrivate,
			fmt.Sprintf("@%s is private; log in with an account that follows them", username), 0)
	}

	items, err := retry.DoWithResult(func() ([]instagram.MediaItem, error) {
		r.waitLimiter()
		return client.FetchStories(ctx, profile.ID)
	}, retryCfg)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("@%s has no active stories", username), 0)
	}

	caption := fmt.Sprintf("Stories from @%s (%d)", profile.Username, len(items))
	return r.stage(ctx, client, "stories_"+profile.Username, profile.Username, caption, items)
}

// fetchPost downloads a post or reel by shortcode
func (r *Relay) fetchPost(ctx context.Context, client *instagram.Client, shortcode string) (*Delivery, error) {
	retryCfg := retry.FromConfig(&r.cfg.Retry).WithContext(ctx)

	post, err := retry.DoWithResult(func() (*instagram.Post, error) {
		r.waitLimiter()
		return client.FetchPost(ctx, shortcode)
	}, retryCfg)
	if err != nil {
		return nil, err
	}

	if len(post.Items) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("post %s has no media", shortcode), 0)
	}

	caption := fmt.Sprintf("Post by @%s", post.Owner)
	if len(post.Items) > 1 {
		caption = fmt.Sprintf("Post by @%s (%d items)", post.Owner, len(post.Items))
	}
	return r.stage(ctx, client, "post_"+shortcode, post.Owner, caption, post.Items)
}

// stage downloads the media items into a fresh request directory
func (r *Relay) stage(
	ctx context.Context,
	client *instagram.Client,
	prefix, owner, caption string,
	items []instagram.MediaItem,
) (*Delivery, error) {
	dir, err := r.staging.NewRequestDir(prefix)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeUnknown, fmt.Sprintf("failed to stage request: %v", err), 0)
	}

	downloadCtx, cancel := context.WithTimeout(ctx, r.cfg.Download.DownloadTimeout)
	defer cancel()

	media, kinds, err := downloader.DownloadAll(
		downloadCtx,
		items,
		r.cfg.Download.ConcurrentDownloads,
		client,
		dir,
		r.limiter,
		r.logger,
	)
	if len(media) == 0 {
		dir.Cleanup()
		if err != nil {
			return nil, err
		}
		return nil, errors.New(errors.ErrorTypeUnknown, "no media could be downloaded", 0)
	}
	if err != nil {
		r.logger.WithError(err).Warn("some media items failed, sending partial result")
	}

	return &Delivery{
		Owner:   owner,
		Caption: caption,
		Media:   media,
		Kinds:   kinds,
		dir:     dir,
	}, nil
}

// waitLimiter blocks until the global request budget allows another call
func (r *Relay) waitLimiter() {
	if r.limiter != nil && !r.limiter.Allow() {
		r.limiter.Wait()
	}
}
