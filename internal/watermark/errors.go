package watermark

import (
	"errors"
	"fmt"
	"net/http"

	"go-aquamark/internal/assets"
	"go-aquamark/internal/decrypt"
	"go-aquamark/internal/ledger"
	"go-aquamark/internal/overlay"
)

var (
	ErrInputMissing = errors.New("watermark: required input missing")
	ErrUnauthorized = errors.New("watermark: unauthorized")
)

// Kind classifies a failure for the transport layer.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInputMissing
	KindUnauthorized
	KindDecryptionFailed
	KindLedgerRecordNotFound
	KindInsufficientCredit
	KindLogoNotFound
	KindUnsupportedLogoFormat
	KindCompositionFailed
	KindLedgerCommitFailed
)

var kindInfo = map[Kind]struct {
	code   string
	status int
}{
	KindUnexpected:            {"unexpected", http.StatusInternalServerError},
	KindInputMissing:          {"input_missing", http.StatusBadRequest},
	KindUnauthorized:          {"unauthorized", http.StatusUnauthorized},
	KindDecryptionFailed:      {"decryption_failed", http.StatusInternalServerError},
	KindLedgerRecordNotFound:  {"ledger_record_not_found", http.StatusInternalServerError},
	KindInsufficientCredit:    {"insufficient_credit", http.StatusPaymentRequired},
	KindLogoNotFound:          {"logo_not_found", http.StatusInternalServerError},
	KindUnsupportedLogoFormat: {"unsupported_logo_format", http.StatusInternalServerError},
	KindCompositionFailed:     {"composition_failed", http.StatusInternalServerError},
	KindLedgerCommitFailed:    {"ledger_commit_failed", http.StatusInternalServerError},
}

func (k Kind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return kindInfo[KindUnexpected].code
}

func (k Kind) HTTPStatus() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string { return k.Code() }

// Checked in order: a commit failure caused by a credit shortfall is still a
// commit failure.
var classification = []struct {
	target error
	kind   Kind
}{
	{ledger.ErrCommitFailed, KindLedgerCommitFailed},
	{ErrInputMissing, KindInputMissing},
	{ErrUnauthorized, KindUnauthorized},
	{decrypt.ErrDecryptionFailed, KindDecryptionFailed},
	{ledger.ErrRecordNotFound, KindLedgerRecordNotFound},
	{ledger.ErrInsufficientCredit, KindInsufficientCredit},
	{assets.ErrNoLogoFound, KindLogoNotFound},
	{overlay.ErrUnsupportedLogoFormat, KindUnsupportedLogoFormat},
	{overlay.ErrCompositionFailed, KindCompositionFailed},
}

// KindOf classifies err; nil and unknown errors are KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	for _, c := range classification {
		if errors.Is(err, c.target) {
			return c.kind
		}
	}
	return KindUnexpected
}

// StageError records the state a document failed to reach.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("watermark: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func failAt(stage State, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (State, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}
