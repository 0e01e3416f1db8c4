package auth

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"artspire/internal/endpoints"
	"artspire/internal/logger"
	"artspire/pkg/cel"
	"artspire/pkg/metrics"
)

// TokenVerifier decodes a raw token into its claims.
type TokenVerifier interface {
	Verify(raw string) (map[string]interface{}, error)
}

// TokenValidationHandler answers jwt_request. Any decode failure or policy
// rejection yields {"is_valid": false, "decoded": null}.
type TokenValidationHandler struct {
	verifier TokenVerifier
	policy   *cel.Policy
	logger   logger.Logger
}

func NewTokenValidationHandler(verifier TokenVerifier, policy *cel.Policy, log logger.Logger) *TokenValidationHandler {
	return &TokenValidationHandler{
		verifier: verifier,
		policy:   policy,
		logger:   log.Named("jwt_request"),
	}
}

func (h *TokenValidationHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	raw := strings.TrimSpace(string(body))

	claims, err := h.verifier.Verify(raw)
	if err != nil {
		h.logger.DebugwCtx(ctx, "Token rejected", "error", err)
		metrics.IncTokenValidation("invalid")
		return json.Marshal(endpoints.TokenValidation{})
	}

	if h.policy != nil {
		allowed, err := h.policy.Allows(ctx, claims)
		if err != nil {
			h.logger.WarnwCtx(ctx, "Claims policy evaluation failed", "policy", h.policy.String(), "error", err)
		}
		if err != nil || !allowed {
			metrics.IncTokenValidation("denied")
			return json.Marshal(endpoints.TokenValidation{})
		}
	}

	metrics.IncTokenValidation("valid")
	return json.Marshal(endpoints.TokenValidation{IsValid: true, Decoded: claims})
}

// UserLookupHandler answers users_request with the public records of the
// requested ids, deduplicated and ordered by id. Malformed input yields [].
type UserLookupHandler struct {
	repo   Repository
	logger logger.Logger
}

func NewUserLookupHandler(repo Repository, log logger.Logger) *UserLookupHandler {
	return &UserLookupHandler{repo: repo, logger: log.Named("users_request")}
}

func (h *UserLookupHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		h.logger.WarnwCtx(ctx, "Malformed user lookup payload", "error", err)
		return []byte("[]"), nil
	}

	ids = uniqueSorted(ids)
	users, err := h.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]endpoints.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return json.Marshal(out)
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
