package storefront

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/Sternrassler/storefront-edge/pkg/logging"
)

// HeaderWebhookSecret carries the shared secret of the revalidation webhook.
const HeaderWebhookSecret = "X-Webhook-Secret"

const maxWebhookBody = 64 << 10

// WebhookEvent is a commerce platform change notification.
type WebhookEvent struct {
	Scope string `json:"scope"`
	Data  struct {
		ID   json.Number `json:"id"`
		Type string      `json:"type"`
	} `json:"data"`
}

type revalidateResponse struct {
	Invalidated int      `json:"invalidated"`
	Tags        []string `json:"tags"`
}

// TagsForEvent maps a webhook scope such as "store/product/updated" to the tags whose
// entries it makes stale. Entity events drop the store-scoped entity tag, so every channel's
// copy goes at once. Unknown scopes return an error.
func TagsForEvent(d *cache.Deriver, ev WebhookEvent) ([]string, error) {
	parts := strings.Split(ev.Scope, "/")
	if len(parts) < 3 || parts[0] != "store" {
		return nil, fmt.Errorf("unsupported webhook scope %q", ev.Scope)
	}

	id := ev.Data.ID.String()
	switch parts[1] {
	case "channel":
		if id == "" {
			return nil, fmt.Errorf("scope %q requires data.id", ev.Scope)
		}
		return []string{d.ChannelTag(id)}, nil
	case "information", "settings":
		return []string{d.StoreTag()}, nil
	}

	for _, t := range cache.EntityTypes() {
		if string(t) == parts[1] {
			return []string{d.StoreScopedTag(t, id)}, nil
		}
	}
	return nil, fmt.Errorf("unsupported webhook scope %q", ev.Scope)
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret == "" || s.cfg.Invalidator == nil {
		writeError(w, http.StatusNotFound, "revalidation disabled")
		return
	}

	given := r.Header.Get(HeaderWebhookSecret)
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.WebhookSecret)) != 1 {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Revalidation webhook rejected")
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var ev WebhookEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err := dec.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if _, err := strconv.ParseInt(ev.Data.ID.String(), 10, 64); ev.Data.ID != "" && err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	tags, err := TagsForEvent(s.cfg.Deriver, ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.cfg.Invalidator.InvalidateTags(r.Context(), tags...)
	if err != nil {
		s.logger.Error().Err(err).Strs(logging.FieldTags, tags).Msg("Tag invalidation failed")
		writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}

	s.logger.Info().Str("scope", ev.Scope).Strs(logging.FieldTags, tags).Int("entries", n).Msg("Tags revalidated")
	writeJSON(w, http.StatusOK, revalidateResponse{Invalidated: n, Tags: tags})
}
