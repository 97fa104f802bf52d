package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/common"
	"go.etcd.io/bbolt"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000

	PrizesClaimedCounter = "journal.prizes.claimed"
)

var ErrEventsBucketNotFound = errors.New("events bucket doesn't exist")

type JournalService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan Event

	Registry metrics.Registry
	Logger   zerolog.Logger
}

func NewJournalService(i do.Injector) (*JournalService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan Event](i, "event-source")
	registry := do.MustInvoke[metrics.Registry](i)
	loggerService := do.MustInvoke[*common.LoggerService](i)

	result := &JournalService{
		DatabaseService: databaseService,

		EventSource: eventSource,

		Registry: registry,
		Logger:   loggerService.Named("journal"),
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *JournalService) Routes(e *echo.Echo) {
	journalGroup := e.Group("/api/journal")

	journalGroup.GET("", s.GetEvents)
}

// Start consumes events until the source is closed. The returned channel is
// closed once every published event has been handled.
func (s *JournalService) Start() <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		s.processEvents()
	}()

	return done
}

// Append writes the event inside tx, so it is recorded iff tx commits.
func Append(tx *bbolt.Tx, eventType string, tournamentID string, data any) (Event, error) {
	bucket := tx.Bucket([]byte(common.JournalEventsBucket))
	if bucket == nil {
		return Event{}, ErrEventsBucketNotFound
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("failed to generate event ID: %w", err)
	}

	sequence, err := bucket.NextSequence()
	if err != nil {
		return Event{}, fmt.Errorf("failed to allocate event sequence: %w", err)
	}

	event := Event{
		Sequence:     sequence,
		ID:           id.String(),
		Type:         eventType,
		TournamentID: tournamentID,
		CreatedAt:    time.Now().UTC(),
		Data:         payload,
	}

	marshaledEvent, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	err = bucket.Put(common.SequenceKey(sequence), marshaledEvent)
	if err != nil {
		return Event{}, fmt.Errorf("failed to put event: %w", err)
	}

	return event, nil
}

// List returns up to limit events with a sequence greater than after. An empty
// tournamentID matches every tournament.
func (s *JournalService) List(after uint64, limit int, tournamentID string) (*Page, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	page := &Page{
		Events: []Event{},
		Next:   after,
	}

	if after == math.MaxUint64 {
		return page, nil
	}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(common.JournalEventsBucket))
		if bucket == nil {
			return ErrEventsBucketNotFound
		}

		cursor := bucket.Cursor()

		for key, value := cursor.Seek(common.SequenceKey(after + 1)); key != nil; key, value = cursor.Next() {
			var event Event

			err := json.Unmarshal(value, &event)
			if err != nil {
				return fmt.Errorf("failed to unmarshal event %d: %w", common.KeySequence(key), err)
			}

			page.Next = event.Sequence

			if len(tournamentID) > 0 && event.TournamentID != tournamentID {
				continue
			}

			page.Events = append(page.Events, event)

			if len(page.Events) >= limit {
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return page, nil
}

func (s *JournalService) HandleEvent(event Event) {
	metrics.GetOrRegisterCounter("journal.events."+event.Type, s.Registry).Inc(1)

	logEvent := s.Logger.Info().
		Uint64("sequence", event.Sequence).
		Str("id", event.ID).
		Str("type", event.Type).
		Str("tournament_id", event.TournamentID)

	if event.Type == EventTypePrizeClaimed {
		var claimed struct {
			Amount uint64 `json:"amount"`
		}

		err := json.Unmarshal(event.Data, &claimed)
		if err == nil {
			//nolint:gosec // counters are int64; a single claim never exceeds the pool
			metrics.GetOrRegisterCounter(PrizesClaimedCounter, s.Registry).Inc(int64(claimed.Amount))
			logEvent = logEvent.Uint64("amount", claimed.Amount)
		}
	}

	logEvent.RawJSON("data", event.Data).Msg("event")
}

func (s *JournalService) processEvents() {
	for event := range s.EventSource {
		s.HandleEvent(event)
	}
}

func (s *JournalService) GetEvents(c echo.Context) error {
	var after uint64

	if raw := c.QueryParam("after"); len(raw) > 0 {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid after value")
		}

		after = parsed
	}

	limit := DefaultPageSize

	if raw := c.QueryParam("limit"); len(raw) > 0 {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit value")
		}

		limit = parsed
	}

	page, err := s.List(after, limit, c.QueryParam("tournament_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list events")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, page)
}
