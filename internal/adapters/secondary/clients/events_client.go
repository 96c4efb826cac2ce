package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

const maxResponseBytes = 8 << 20

const eventSelection = `items {
        id
        eventType
        eventTime
        description
        playerId
        villageId
        player {
          id
          pfp
          username
        }
      }`

// EventsQuery construit la requête GraphQL d'une session. L'id de village
// est déjà validé (numérique) et passe quand même par strconv.Quote.
func EventsQuery(q domain.FeedQuery) string {
	args := fmt.Sprintf(`limit: %d, orderDirection: "desc", orderBy: "eventTime"`, q.Limit())
	if !q.IsGlobal() {
		args += fmt.Sprintf(`, where: { villageIdsInvolved_has: %s }`, strconv.Quote(q.VillageID))
	}
	return fmt.Sprintf("query MyQuery {\n    events(%s) {\n      %s\n    }\n  }", args, eventSelection)
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type eventsResponse struct {
	Data *struct {
		Events *struct {
			Items []domain.ActivityEvent `json:"items"`
		} `json:"events"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// EventsClient interroge l'API GraphQL Stoke Fire (POST {query})
type EventsClient struct {
	endpoint string
	http     *http.Client
}

func NewEventsClient(endpoint string, httpClient *http.Client) (*EventsClient, error) {
	// Fail fast si le template de requête est cassé (les deux formes)
	for _, q := range []domain.FeedQuery{{}, {VillageID: "0"}} {
		if _, err := parser.ParseQuery(&ast.Source{Name: "events", Input: EventsQuery(q)}); err != nil {
			return nil, fmt.Errorf("invalid events query: %w", err)
		}
	}
	return &EventsClient{endpoint: endpoint, http: httpClient}, nil
}

func (c *EventsClient) FetchEvents(ctx context.Context, q domain.FeedQuery) ([]domain.ActivityEvent, error) {
	body, err := json.Marshal(graphqlRequest{Query: EventsQuery(q)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Querying events API", "village_id", q.VillageID, "limit", q.Limit())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("events api: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out eventsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode events response: %w", err)
	}

	if len(out.Errors) > 0 {
		msgs := make([]error, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = errors.New(e.Message)
		}
		return nil, fmt.Errorf("events api: %w", errors.Join(msgs...))
	}
	if out.Data == nil || out.Data.Events == nil {
		return nil, errors.New("events api: response has no data.events")
	}

	items := out.Data.Events.Items
	if items == nil {
		items = []domain.ActivityEvent{}
	}
	return items, nil
}
