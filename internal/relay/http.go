package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ciphermesh/internal/domain"
	"ciphermesh/internal/metrics"
)

// Header names identifying the calling device to the directory.
const (
	HeaderUser   = "X-Ciphermesh-User"
	HeaderDevice = "X-Ciphermesh-Device"
)

// QueryKnown repeats once per device the caller already has a session with.
const QueryKnown = "known"

// Request bodies shared with the directory server.
type (
	IdentityUpload struct {
		IdentityKey    domain.X25519Public  `json:"identity_key"`
		SigningKey     domain.Ed25519Public `json:"signing_key"`
		RegistrationID uint32               `json:"registration_id"`
	}
	PreKeysUpload struct {
		PreKeys []domain.PreKeyPublic `json:"pre_keys"`
	}
	DevicesResponse struct {
		Bundles []domain.PreKeyBundle `json:"bundles"`
	}
)

// HTTP is the directory client. Self identifies the device the client acts
// for and is sent with every request.
type HTTP struct {
	Base    string
	Self    domain.DeviceAddress
	HTTP    *http.Client
	Log     *zap.Logger
	Metrics *metrics.Registry
}

// NewHTTP returns a client for the directory at base.
func NewHTTP(base string, self domain.DeviceAddress, log *zap.Logger, m *metrics.Registry) *HTTP {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &HTTP{
		Base:    strings.TrimRight(base, "/"),
		Self:    self,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Log:     log,
		Metrics: m,
	}
}

// FetchDevices returns the bundles of every device of user together with
// the caller's own other devices. Devices in known do not use up a one-time
// pre-key and are accepted without one. Bundles that fail validation are
// reported in Rejected.
func (c *HTTP) FetchDevices(ctx context.Context, user domain.UserID, known []domain.DeviceAddress) (domain.DeviceList, error) {
	path := "/v1/users/" + url.PathEscape(user.String()) + "/devices"
	isKnown := make(map[domain.DeviceAddress]bool, len(known))
	if len(known) > 0 {
		q := url.Values{}
		for _, a := range known {
			isKnown[a] = true
			q.Add(QueryKnown, a.String())
		}
		path += "?" + q.Encode()
	}
	var out DevicesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.DeviceList{}, err
	}
	var list domain.DeviceList
	for _, b := range out.Bundles {
		validate := b.Validate
		if isKnown[b.Address()] {
			validate = b.ValidateKnown
		}
		if err := validate(); err != nil {
			c.Log.Warn("dropping bundle",
				zap.String("address", b.Address().String()),
				zap.Error(err))
			c.Metrics.Inc(metrics.BundleRejected)
			list.Rejected = append(list.Rejected, domain.RejectedBundle{Address: b.Address(), Err: err})
			continue
		}
		list.Bundles = append(list.Bundles, b)
	}
	return list, nil
}

func (c *HTTP) UploadIdentity(ctx context.Context, identityKey domain.X25519Public, signingKey domain.Ed25519Public, registrationID uint32) error {
	return c.do(ctx, http.MethodPut, "/v1/devices/self/identity", IdentityUpload{
		IdentityKey:    identityKey,
		SigningKey:     signingKey,
		RegistrationID: registrationID,
	}, nil)
}

func (c *HTTP) UploadPreKeys(ctx context.Context, keys []domain.PreKeyPublic) error {
	return c.do(ctx, http.MethodPut, "/v1/devices/self/prekeys", PreKeysUpload{PreKeys: keys}, nil)
}

func (c *HTTP) UploadSignedPreKey(ctx context.Context, key domain.SignedPreKeyPublic) error {
	return c.do(ctx, http.MethodPut, "/v1/devices/self/signed", key, nil)
}

func (c *HTTP) RemoveSignedPreKey(ctx context.Context, id domain.SignedPreKeyID) error {
	path := "/v1/devices/self/signed/" + strconv.FormatUint(uint64(id), 10)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (c *HTTP) QueryStatus(ctx context.Context) (domain.DirectoryStatus, error) {
	var st domain.DirectoryStatus
	err := c.do(ctx, http.MethodGet, "/v1/devices/self/status", nil, &st)
	return st, err
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory %s %s: %s", e.Method, e.URL, e.Status)
}

// Unwrap maps the status to a sentinel so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Code >= 500:
		return domain.ErrDirectoryUnavailable
	}
	return nil
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	u := c.Base + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderUser, c.Self.UserID.String())
	req.Header.Set(HeaderDevice, c.Self.DeviceID.String())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Status: resp.Status}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("directory %s %s: decode: %w", method, u, err)
		}
	}
	return nil
}

var _ domain.Directory = (*HTTP)(nil)
