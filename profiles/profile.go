package profiles

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
	"github.com/jrsteele09/go-auth-starter/internal/utils"
)

// Table is the backend table holding one profile row per account. Rows are
// created by a backend trigger on sign-up and never written from here.
const Table = "profiles"

// Profile is the application-level user record keyed by the account id.
type Profile struct {
	ID        string     `json:"id"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Username  *string    `json:"username,omitempty"`
	FullName  *string    `json:"full_name,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	Website   *string    `json:"website,omitempty"`
}

// DisplayName prefers the full name, then the username.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := utils.Value(p.FullName); name != "" {
		return name
	}
	return utils.Value(p.Username)
}

// Repo reads profile rows. GetByID returns errors.ErrProfileNotFound when no
// row exists for id.
type Repo interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
}

// ValidateID checks id is an account id before any lookup is attempted.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.Wrapf(errs.ErrInvalidUserID, "%q", id)
	}
	return nil
}

// State distinguishes a profile that was never fetched from one whose fetch
// failed.
type State int

const (
	StateNotStarted State = iota
	StateError
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateSuccess:
		return "success"
	default:
		return "not_started"
	}
}

// Result is the outcome of the most recent profile fetch.
type Result struct {
	State   State
	Profile *Profile
	Err     error
}

func NotStarted() Result {
	return Result{State: StateNotStarted}
}

func Failed(err error) Result {
	return Result{State: StateError, Err: err}
}

func Loaded(p *Profile) Result {
	return Result{State: StateSuccess, Profile: p}
}

func (r Result) MarshalJSON() ([]byte, error) {
	body := struct {
		State   string   `json:"state"`
		Profile *Profile `json:"profile,omitempty"`
		Error   string   `json:"error,omitempty"`
	}{State: r.State.String(), Profile: r.Profile}
	if r.Err != nil {
		body.Error = r.Err.Error()
	}
	return json.Marshal(body)
}
