package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// VoucherService generates voucher codes on behalf of the partner voucher
// system. Only the resulting reference is recorded on the grant; fulfillment
// is the partner's concern.
type VoucherService struct{}

func NewVoucherService() *VoucherService {
	return &VoucherService{}
}

// Issue returns a partner-scoped voucher code, e.g. "ACME-CAFE-3F9A2C1B".
func (s *VoucherService) Issue(userID, partner string, value float64) (string, error) {
	if partner == "" {
		return "", fmt.Errorf("voucher partner is empty")
	}
	prefix := strings.ToUpper(slug.Make(partner))
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	code := fmt.Sprintf("%s-%s", prefix, entropy)
	fmt.Printf("🎟️ Voucher issued: %s (value %.2f) → %s\n", code, value, userID)
	return code, nil
}
