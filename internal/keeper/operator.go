package keeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/updown/internal/crypto"
	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/engine"
)

// Operator is what the keeper drives: the scheduler commands plus the reads
// needed to decide which one is due.
type Operator interface {
	State(ctx context.Context) (domain.State, error)
	Round(ctx context.Context, epoch int64) (domain.Round, error)
	GenesisStartRound(ctx context.Context) error
	GenesisLockRound(ctx context.Context) error
	ExecuteRound(ctx context.Context) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
}

// LocalOperator calls an in-process engine as caller.
type LocalOperator struct {
	Engine *engine.Engine
	Caller string
}

func (o LocalOperator) State(ctx context.Context) (domain.State, error) {
	return o.Engine.State(ctx)
}

func (o LocalOperator) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	return o.Engine.Round(ctx, epoch)
}

func (o LocalOperator) GenesisStartRound(ctx context.Context) error {
	return o.Engine.GenesisStartRound(ctx, o.Caller)
}

func (o LocalOperator) GenesisLockRound(ctx context.Context) error {
	return o.Engine.GenesisLockRound(ctx, o.Caller)
}

func (o LocalOperator) ExecuteRound(ctx context.Context) error {
	return o.Engine.ExecuteRound(ctx, o.Caller)
}

func (o LocalOperator) Pause(ctx context.Context) error {
	return o.Engine.Pause(ctx, o.Caller)
}

func (o LocalOperator) Unpause(ctx context.Context) error {
	return o.Engine.Unpause(ctx, o.Caller)
}

// RemoteOperator drives an engine behind the HTTP API, signing every
// request with the operator key.
type RemoteOperator struct {
	baseURL string
	signer  *crypto.Signer
	apiKey  crypto.APIKeyAuth
	client  *http.Client
	now     func() time.Time
}

// NewRemoteOperator creates a RemoteOperator for the API at baseURL.
func NewRemoteOperator(baseURL string, signer *crypto.Signer, apiKey crypto.APIKeyAuth) *RemoteOperator {
	return &RemoteOperator{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

func (o *RemoteOperator) State(ctx context.Context) (domain.State, error) {
	var st domain.State
	err := o.call(ctx, http.MethodGet, "/api/v1/state", &st)
	return st, err
}

func (o *RemoteOperator) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	var r domain.Round
	err := o.call(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rounds/%d", epoch), &r)
	return r, err
}

func (o *RemoteOperator) GenesisStartRound(ctx context.Context) error {
	return o.call(ctx, http.MethodPost, "/api/v1/admin/genesis/start", nil)
}

func (o *RemoteOperator) GenesisLockRound(ctx context.Context) error {
	return o.call(ctx, http.MethodPost, "/api/v1/admin/genesis/lock", nil)
}

func (o *RemoteOperator) ExecuteRound(ctx context.Context) error {
	return o.call(ctx, http.MethodPost, "/api/v1/admin/rounds/execute", nil)
}

func (o *RemoteOperator) Pause(ctx context.Context) error {
	return o.call(ctx, http.MethodPost, "/api/v1/admin/pause", nil)
}

func (o *RemoteOperator) Unpause(ctx context.Context) error {
	return o.call(ctx, http.MethodPost, "/api/v1/admin/unpause", nil)
}

// call sends a body-less signed request and decodes a JSON reply into out.
func (o *RemoteOperator) call(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("keeper: build %s %s: %w", method, path, err)
	}
	ts := o.now().Unix()
	if err := o.signer.SignRequest(req, nil, ts); err != nil {
		return err
	}
	if o.apiKey.Enabled() {
		for k, v := range o.apiKey.Headers(method, req.URL.Path, nil, ts) {
			req.Header.Set(k, v)
		}
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("keeper: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("keeper: read %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("keeper: %s %s: %w", method, path, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return fmt.Errorf("keeper: %s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("keeper: decode %s: %w", path, err)
		}
	}
	return nil
}

var (
	_ Operator = LocalOperator{}
	_ Operator = (*RemoteOperator)(nil)
)
