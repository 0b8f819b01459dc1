package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// ProgramError is a custom error returned by the marketplace program.
type ProgramError struct {
	Code uint32
	Name string
	Err  error
}

func (e *ProgramError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (0x%x): %s", e.Name, e.Code, e.Err.Error())
	}
	return fmt.Sprintf("%s (0x%x)", e.Name, e.Code)
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// Custom error codes of the marketplace program. Anchor numbers user errors from 6000.
const (
	CodeListingNotActive uint32 = 6000 + iota
	CodeUnauthorized
	CodeInvalidPrice
	CodeSelfPurchase
	CodeEscrowMismatch
	CodeMarketplaceMismatch

	CodeAccountNotInitialized uint32 = 3012
	CodeAccountInUse          uint32 = 0
	CodeTokenInsufficient     uint32 = 1
)

var programErrorNames = map[uint32]string{
	CodeListingNotActive:      "ListingNotActive",
	CodeUnauthorized:          "Unauthorized",
	CodeInvalidPrice:          "InvalidPrice",
	CodeSelfPurchase:          "SelfPurchase",
	CodeEscrowMismatch:        "EscrowMismatch",
	CodeMarketplaceMismatch:   "MarketplaceMismatch",
	CodeAccountNotInitialized: "AccountNotInitialized",
	CodeAccountInUse:          "AccountAlreadyInUse",
	CodeTokenInsufficient:     "InsufficientFunds",
}

func NewProgramError(code uint32) *ProgramError {
	name, ok := programErrorNames[code]
	if !ok {
		name = "Custom"
	}
	return &ProgramError{Code: code, Name: name}
}

var customErrorRe = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// decodeProgramError lifts "custom program error: 0x..." out of an rpc failure.
func decodeProgramError(err error) error {
	if err == nil {
		return nil
	}

	parts := customErrorRe.FindStringSubmatch(err.Error())
	if len(parts) != 2 {
		return err
	}

	code, perr := strconv.ParseUint(parts[1], 16, 32)
	if perr != nil {
		return err
	}

	pe := NewProgramError(uint32(code))
	pe.Err = err

	return pe
}

// transactionError turns the err of a landed transaction, e.g.
// {"InstructionError":[0,{"Custom":6000}]}, into a ProgramError when it carries a custom code.
func transactionError(sig solana.Signature, txErr interface{}) error {
	raw := fmt.Errorf("transaction %s failed: %v", sig, txErr)

	code, ok := customCode(txErr)
	if !ok {
		return raw
	}

	pe := NewProgramError(code)
	pe.Err = raw

	return pe
}

func customCode(txErr interface{}) (uint32, bool) {
	m, ok := txErr.(map[string]interface{})
	if !ok {
		return 0, false
	}

	ixErr, ok := m["InstructionError"].([]interface{})
	if !ok || len(ixErr) != 2 {
		return 0, false
	}

	detail, ok := ixErr[1].(map[string]interface{})
	if !ok {
		return 0, false
	}

	switch v := detail["Custom"].(type) {
	case float64:
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, false
		}
		return uint32(v), true
	case json.Number:
		code, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(code), true
	}

	return 0, false
}
