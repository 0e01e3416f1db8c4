package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sony/gobreaker"

	"artspire/internal/constants"
	"artspire/internal/rabbitmq"
	pkgerrors "artspire/pkg/errors"
)

// Client calls the RPC endpoints of the other services and maps transport
// and reply failures onto pkg/errors values an HTTP handler can render.
type Client struct {
	caller rabbitmq.Caller
}

func NewClient(caller rabbitmq.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) ValidateToken(ctx context.Context, token string) (TokenValidation, error) {
	var out TokenValidation
	if err := c.call(ctx, constants.JWTRequestQueue, []byte(token), &out); err != nil {
		return TokenValidation{}, err
	}
	return out, nil
}

// Authenticate returns the claims of a valid token.
func (c *Client) Authenticate(ctx context.Context, token string) (map[string]interface{}, error) {
	res, err := c.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		return nil, pkgerrors.ErrUnauthorized.WithMessage("invalid or expired token")
	}
	return res.Decoded, nil
}

func (c *Client) LookupUsers(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) > constants.MaxUsersPerLookup {
		return nil, pkgerrors.ErrValidation.WithDetail("message", fmt.Sprintf("at most %d ids per lookup", constants.MaxUsersPerLookup))
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err)
	}

	users := []User{}
	if err := c.call(ctx, constants.UsersRequestQueue, payload, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// StoreImage returns the name the image was stored under.
func (c *Client) StoreImage(ctx context.Context, req ImageStoreRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", pkgerrors.ErrValidation.WithCause(err)
	}

	var out ImageStoreResponse
	if err := c.call(ctx, constants.ImageAddRequestQueue, payload, &out); err != nil {
		return "", err
	}
	if err := StatusError(out.Status); err != nil {
		return "", err
	}
	if out.BlobName == nil {
		return "", pkgerrors.ErrBadGateway.WithDetail("message", "image store reply has no blob name")
	}
	return *out.BlobName, nil
}

func (c *Client) ImageURL(ctx context.Context, blobName string) (string, error) {
	payload, err := json.Marshal(ImageURLRequest{BlobName: blobName})
	if err != nil {
		return "", pkgerrors.ErrValidation.WithCause(err)
	}

	var out ImageURLResponse
	if err := c.call(ctx, constants.ImageGetRequestQueue, payload, &out); err != nil {
		return "", err
	}
	if err := StatusError(out.Status); err != nil {
		return "", err
	}
	if out.ImgURL == nil {
		return "", pkgerrors.ErrBadGateway.WithDetail("message", "image url reply has no url")
	}
	return *out.ImgURL, nil
}

func (c *Client) SimilarArts(ctx context.Context, artID int) ([]int, error) {
	ids := []int{}
	if err := c.call(ctx, constants.SimilarityRequestQueue, []byte(strconv.Itoa(artID)), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) call(ctx context.Context, routingKey string, payload []byte, out interface{}) error {
	reply, err := c.caller.Call(ctx, payload, routingKey)
	if err != nil {
		return callError(routingKey, err)
	}
	if err := json.Unmarshal(reply, out); err != nil {
		return pkgerrors.ErrBadGateway.WithCause(err).WithDetail("endpoint", routingKey)
	}
	return nil
}

func callError(routingKey string, err error) error {
	var (
		connErr    *rabbitmq.ConnectionError
		publishErr *rabbitmq.PublishError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, rabbitmq.ErrCallTimeout):
		return pkgerrors.ErrTimeout.WithCause(err).WithDetail("endpoint", routingKey)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.As(err, &connErr), errors.As(err, &publishErr),
		errors.Is(err, rabbitmq.ErrClientClosed):
		return pkgerrors.ErrServiceUnavailable.WithCause(err).WithDetail("endpoint", routingKey)
	default:
		return pkgerrors.ErrInternal.WithCause(err).WithDetail("endpoint", routingKey)
	}
}

// StatusError maps a failed image status onto a pkg/errors value.
func StatusError(status ImageStatus) error {
	switch status {
	case ImageStatusSuccess:
		return nil
	case ImageStatusInvalidType:
		return pkgerrors.ErrValidation.WithDetail("message", "image type must be jpeg, png or webp")
	case ImageStatusJSONDecodeError, ImageStatusOSError:
		return pkgerrors.ErrValidation.WithDetail("message", "image could not be decoded").WithDetail("status", status.String())
	default:
		return pkgerrors.ErrBadGateway.WithDetail("status", status.String())
	}
}
