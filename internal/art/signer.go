package art

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrURLExpired       = errors.New("url expired")
)

// URLSigner produces time-limited blob URLs of the form
// {base}/blobs/{name}?expires={unix}&signature={hex}.
type URLSigner struct {
	key     []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewURLSigner(key []byte, baseURL string, ttl time.Duration) *URLSigner {
	return &URLSigner{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *URLSigner) mac(name string, expires int64) string {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%s\n%d", name, expires)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *URLSigner) Sign(name string) string {
	expires := s.now().Add(s.ttl).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.mac(name, expires))

	return s.baseURL + "/blobs/" + (&url.URL{Path: name}).EscapedPath() + "?" + q.Encode()
}

func (s *URLSigner) Verify(name, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !hmac.Equal([]byte(signature), []byte(s.mac(name, exp))) {
		return ErrSignatureInvalid
	}
	if s.now().Unix() > exp {
		return ErrURLExpired
	}
	return nil
}
