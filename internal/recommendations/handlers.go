package recommendations

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"artspire/internal/logger"
	"artspire/pkg/metrics"
)

// SimilarityHandler answers similarity_request. The body is a decimal art
// id; anything else gets the fallback list.
type SimilarityHandler struct {
	recommender *Recommender
	logger      logger.Logger
}

func NewSimilarityHandler(recommender *Recommender, log logger.Logger) *SimilarityHandler {
	return &SimilarityHandler{recommender: recommender, logger: log.Named("similarity_request")}
}

func (h *SimilarityHandler) Handle(ctx context.Context, body []byte) ([]byte, error) {
	var (
		ids    []int
		source string
	)

	artID, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		h.logger.WarnwCtx(ctx, "Non-numeric similarity request", "body", string(body))
		source = SourceFallback
		ids, err = h.recommender.Fallback(ctx)
	} else {
		ids, source, err = h.recommender.Similar(ctx, artID)
	}
	if err != nil {
		return nil, err
	}

	if ids == nil {
		ids = []int{}
	}
	metrics.IncSimilarityLookup(source)
	return json.Marshal(ids)
}
