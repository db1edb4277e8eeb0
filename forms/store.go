package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jupark12/contract-extract/logger"
	"go.uber.org/zap"
)

var ErrInvalidRecord = errors.New("please fill in all required fields")

// InsertError is the error body returned by the REST endpoint.
type InsertError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
	Code       string `json:"code"`
}

func (e *InsertError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("insert failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("insert failed (status %d): %s", e.StatusCode, e.Message)
}

// Store inserts form records into the hosted form-storage tables.
// Every call is a single attempt.
type Store struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	validate   *validator.Validate
	log        *zap.Logger
}

type Option func(*Store)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Store) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.log = logger.OrNop(l)
	}
}

func New(baseURL, anonKey string, opts ...Option) *Store {
	s := &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{},
		validate:   newValidator(),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Insert posts one record into table.
func (s *Store) Insert(ctx context.Context, table string, record any) error {
	body, err := json.Marshal([]any{record})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	endpoint := s.baseURL + "/rest/v1/" + url.PathEscape(table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.anonKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insert into %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		insertErr := &InsertError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(raw, insertErr) != nil {
			insertErr.Message = strings.TrimSpace(string(raw))
		}
		s.log.Error("form insert rejected",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("code", insertErr.Code),
			zap.String("hint", insertErr.Hint))
		return insertErr
	}

	s.log.Info("form record stored", zap.String("table", table))
	return nil
}

func (s *Store) SubmitConsultation(ctx context.Context, c Consultation) error {
	c.Status = StatusPending
	if err := s.check(c); err != nil {
		return err
	}
	return s.Insert(ctx, ConsultationsTable, c)
}

func (s *Store) SubmitLawFirmInquiry(ctx context.Context, in LawFirmInquiry) error {
	if err := s.check(in); err != nil {
		return err
	}
	return s.Insert(ctx, LawFirmTable, in)
}

func (s *Store) SubmitCandidateInquiry(ctx context.Context, in CandidateInquiry) error {
	if err := s.check(in); err != nil {
		return err
	}
	return s.Insert(ctx, CandidateTable, in)
}

func (s *Store) check(record any) error {
	if err := s.validate.Struct(record); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
