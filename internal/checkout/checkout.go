package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart      = errors.New("cart has no items")
	ErrUnknownProduct = errors.New("unknown product in cart")
	ErrPriceMismatch  = errors.New("cart total does not match catalog prices")
)

// PriceLookup resolves the authoritative unit price for a product.
type PriceLookup interface {
	UnitPrice(ctx context.Context, productRef string) (float64, error)
}

// Verified is the server-side view of a checkout. Total and Shipping are
// always the recomputed values, never the client's.
type Verified struct {
	Items     []domain.OrderItem
	Total     float64
	Shipping  float64
	Signature string
}

func NewVerifier(prices PriceLookup, shippingFee, freeShippingAbove float64, hardFail bool, logger *zap.Logger) *Verifier {
	return &Verifier{
		prices:            prices,
		shippingFee:       shippingFee,
		freeShippingAbove: freeShippingAbove,
		hardFail:          hardFail,
		logger:            logger,
	}
}

type Verifier struct {
	prices            PriceLookup
	shippingFee       float64
	freeShippingAbove float64
	hardFail          bool
	logger            *zap.Logger
}

// Verify recomputes the cart from the catalog. The client's claimed total is
// only compared for tamper detection: in hard-fail mode a mismatch rejects
// the checkout, otherwise it is logged and the server total is used anyway.
func (v *Verifier) Verify(ctx context.Context, items []domain.OrderItem, claimedTotal float64) (*Verified, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	out := make([]domain.OrderItem, 0, len(items))
	var total float64
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for %s", item.Quantity, item.ProductRef)
		}
		price, err := v.prices.UnitPrice(ctx, item.ProductRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, item.ProductRef)
		}
		item.UnitPrice = price
		out = append(out, item)
		total += price * float64(item.Quantity)
	}

	shipping := v.shippingFee
	if v.freeShippingAbove > 0 && total >= v.freeShippingAbove {
		shipping = 0
	}

	if claimedTotal != total+shipping {
		if v.hardFail {
			return nil, fmt.Errorf("%w: claimed %.2f, computed %.2f",
				ErrPriceMismatch, claimedTotal, total+shipping)
		}
		v.logger.Warn("cart total mismatch, using server-computed total",
			zap.Float64("claimed", claimedTotal),
			zap.Float64("computed", total+shipping))
	}

	return &Verified{
		Items:     out,
		Total:     total,
		Shipping:  shipping,
		Signature: Signature(out, total, shipping),
	}, nil
}

// Signature is a deterministic digest of a cart: the same items, quantities
// and totals always produce the same value regardless of item order. A retried
// checkout with an identical cart is detected through it and reuses the
// pending order instead of creating a duplicate.
func Signature(items []domain.OrderItem, total, shipping float64) string {
	sorted := make([]domain.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductRef < sorted[j].ProductRef
	})

	var b strings.Builder
	for _, item := range sorted {
		fmt.Fprintf(&b, "%s:%d:%.2f|", item.ProductRef, item.Quantity, item.UnitPrice)
	}
	fmt.Fprintf(&b, "total:%.2f|shipping:%.2f", total, shipping)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
