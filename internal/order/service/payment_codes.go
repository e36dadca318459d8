package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/internal/models"
)

const maxPaymentTypeLen = 32

type ImageStore interface {
	Save(src io.Reader, filename string) (string, error)
	Delete(url string) error
}

func (s *OrderService) PaymentCodes(ctx context.Context, who authz.Identity) ([]models.PaymentCode, error) {
	if err := authz.Authorize(who, authz.PaymentCodeManage, nil); err != nil {
		return nil, err
	}
	return s.Repo.PaymentCodes(ctx, who.UserID)
}

// SetPaymentCode stores the image for one payment channel of the seller,
// replacing any earlier image for the same channel.
func (s *OrderService) SetPaymentCode(ctx context.Context, who authz.Identity, typ string, src io.Reader, filename string) (*models.PaymentCode, error) {
	l := logging.FromContext(ctx).With("svc", "order.set_payment_code", "seller_id", who.UserID)

	if err := authz.Authorize(who, authz.PaymentCodeManage, nil); err != nil {
		return nil, err
	}
	typ = strings.TrimSpace(typ)
	if typ == "" || len(typ) > maxPaymentTypeLen {
		return nil, fmt.Errorf("%w: invalid payment type", apperr.ErrValidation)
	}
	if s.Images == nil {
		return nil, errors.New("image store not configured")
	}

	url, err := s.Images.Save(src, filename)
	if err != nil {
		return nil, err
	}

	code := &models.PaymentCode{SellerID: who.UserID, Type: typ, ImageURL: url}
	previous, err := s.Repo.UpsertPaymentCode(ctx, code)
	if err != nil {
		_ = s.Images.Delete(url)
		return nil, err
	}
	if previous != "" && previous != url {
		if err := s.Images.Delete(previous); err != nil {
			l.Warn("image_delete_error", "url", previous, "error", err)
		}
	}

	l.Info("payment_code_saved", "type", typ)
	return code, nil
}

func (s *OrderService) DeletePaymentCode(ctx context.Context, who authz.Identity, typ string) error {
	l := logging.FromContext(ctx).With("svc", "order.delete_payment_code", "seller_id", who.UserID)

	if err := authz.Authorize(who, authz.PaymentCodeManage, nil); err != nil {
		return err
	}
	code, err := s.Repo.DeletePaymentCode(ctx, who.UserID, typ)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no %s payment code", apperr.ErrNotFound, typ)
		}
		return err
	}
	if s.Images != nil {
		if err := s.Images.Delete(code.ImageURL); err != nil {
			l.Warn("image_delete_error", "url", code.ImageURL, "error", err)
		}
	}

	l.Info("payment_code_deleted", "type", typ)
	return nil
}
