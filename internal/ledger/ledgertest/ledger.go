// Package ledgertest provides an in-memory marketplace ledger for tests. It enforces the
// program's rules with one lock per call, so racing purchases see a single winner.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

type Op string

const (
	OpInitialize Op = "initialize_marketplace"
	OpRegister   Op = "register_user"
	OpList       Op = "list"
	OpDelist     Op = "delist"
	OpPurchase   Op = "purchase"
	OpRelease    Op = "release_escrow"
	OpRefund     Op = "refund"
)

var (
	ErrInsufficientLamports = errors.New("Transfer: insufficient lamports")
	ErrBuyerTokenAccount    = errors.New("buyer token account does not exist")
	ErrNoAsset              = errors.New("owner does not hold the asset")
)

type tokenKey struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

type Ledger struct {
	mu sync.Mutex

	deriver      address.Deriver
	now          func() time.Time
	marketplaces map[solana.PublicKey]entity.Marketplace
	users        map[solana.PublicKey]entity.UserAccount
	listings     map[solana.PublicKey]entity.Listing
	escrows      map[solana.PublicKey]entity.Escrow
	tokens       map[tokenKey]uint64
	tokenAccts   map[solana.PublicKey]bool
	lamports     map[solana.PublicKey]uint64
	metadataUris map[solana.PublicKey]string

	failures map[Op][]error
	failAt   map[Op]map[int]error
	hooks    map[Op]func()
	calls    map[Op]int
	reads    int
}

func New(deriver address.Deriver) *Ledger {
	return &Ledger{
		deriver:      deriver,
		now:          time.Now,
		marketplaces: map[solana.PublicKey]entity.Marketplace{},
		users:        map[solana.PublicKey]entity.UserAccount{},
		listings:     map[solana.PublicKey]entity.Listing{},
		escrows:      map[solana.PublicKey]entity.Escrow{},
		tokens:       map[tokenKey]uint64{},
		tokenAccts:   map[solana.PublicKey]bool{},
		lamports:     map[solana.PublicKey]uint64{},
		metadataUris: map[solana.PublicKey]string{},
		failures:     map[Op][]error{},
		failAt:       map[Op]map[int]error{},
		hooks:        map[Op]func(){},
		calls:        map[Op]int{},
	}
}

var _ ledger.Program = (*Ledger)(nil)

// Seeding helpers.

func (l *Ledger) MintTo(owner, mint solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ata := l.deriver.TokenAccount(owner, mint)
	l.tokenAccts[ata] = true
	l.tokens[tokenKey{owner, mint}] = 1
}

func (l *Ledger) Fund(wallet solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lamports[wallet] += lamports
}

func (l *Ledger) SetMetadataUri(mint solana.PublicKey, uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadataUris[mint] = uri
}

// FailNext makes the next call of op return err without touching state.
func (l *Ledger) FailNext(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = append(l.failures[op], err)
}

// FailCall makes the nth call of op (counting from 1) return err without touching state.
func (l *Ledger) FailCall(op Op, n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAt[op] == nil {
		l.failAt[op] = map[int]error{}
	}
	l.failAt[op][n] = err
}

// BeforeCommit runs fn inside the next call of op, after validation has been scheduled
// but before the lock is taken. Used to interleave a competing client.
func (l *Ledger) BeforeCommit(op Op, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks[op] = fn
}

// DropEscrow removes an escrow without touching its listing, as a release seen by a lagging reader.
func (l *Ledger) DropEscrow(listing solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.escrows, l.deriver.Escrow(listing))
}

// Inspection helpers.

func (l *Ledger) Calls(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}

// Reads counts every Reader call.
func (l *Ledger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

func (l *Ledger) TokenBalance(owner, mint solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[tokenKey{owner, mint}]
}

func (l *Ledger) Lamports(wallet solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lamports[wallet]
}

func (l *Ledger) begin(op Op) (func(), error) {
	l.mu.Lock()
	hook := l.hooks[op]
	delete(l.hooks, op)
	l.mu.Unlock()

	if hook != nil {
		hook()
	}

	l.mu.Lock()
	l.calls[op]++
	if err, ok := l.failAt[op][l.calls[op]]; ok {
		l.mu.Unlock()
		return nil, err
	}
	if errs := l.failures[op]; len(errs) > 0 {
		l.failures[op] = errs[1:]
		l.mu.Unlock()
		return nil, errs[0]
	}

	return l.mu.Unlock, nil
}

func signWith(ctx context.Context, w ledger.Wallet) error {
	if tw, ok := w.(*Wallet); ok {
		return tw.sign(ctx)
	}
	return nil
}

func signature(op Op, n int) solana.Signature {
	var sig solana.Signature
	copy(sig[:], fmt.Sprintf("%s-%d", op, n))
	return sig
}

func programErr(code uint32) error {
	return ledger.NewProgramError(code)
}

func expect(got, want solana.PublicKey) error {
	if !got.Equals(want) {
		return fmt.Errorf("ConstraintSeeds: got %s want %s", got, want)
	}
	return nil
}
