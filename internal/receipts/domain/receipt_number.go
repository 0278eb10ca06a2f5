package receipts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	receiptPrefix = "DON"
	// MaxSequence is the highest sequence a month can allocate. Numbers never widen or wrap.
	MaxSequence = 9999
)

// ReceiptNumber identifies a donation: DON-YYYYMM-NNNN, NNNN unique within the month.
type ReceiptNumber struct {
	Year     int
	Month    time.Month
	Sequence int
}

// Period returns the YYYYMM key a creation instant allocates under. Months are UTC.
func Period(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%02d", t.Year(), int(t.Month()))
}

// Allocate forms the receipt number following existingCount records created
// in the same month. existingCount must be read atomically with the write of
// the new record; Allocate itself only formats.
func Allocate(creationMonth time.Time, existingCount int) (ReceiptNumber, error) {
	if existingCount < 0 {
		return ReceiptNumber{}, fmt.Errorf("receipts: negative existing count %d", existingCount)
	}
	if existingCount >= MaxSequence {
		return ReceiptNumber{}, ErrSequenceExhausted
	}
	month := creationMonth.UTC()
	return ReceiptNumber{Year: month.Year(), Month: month.Month(), Sequence: existingCount + 1}, nil
}

// String formats the number.
func (n ReceiptNumber) String() string {
	return fmt.Sprintf("%s-%04d%02d-%04d", receiptPrefix, n.Year, int(n.Month), n.Sequence)
}

// Period returns the YYYYMM key of the number.
func (n ReceiptNumber) Period() string {
	return fmt.Sprintf("%04d%02d", n.Year, int(n.Month))
}

// ParseReceiptNumber parses DON-YYYYMM-NNNN.
func ParseReceiptNumber(value string) (ReceiptNumber, error) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 || parts[0] != receiptPrefix || len(parts[1]) != 6 || len(parts[2]) != 4 {
		return ReceiptNumber{}, ErrInvalidReceiptNumber
	}
	year, err := strconv.Atoi(parts[1][:4])
	if err != nil {
		return ReceiptNumber{}, ErrInvalidReceiptNumber
	}
	month, err := strconv.Atoi(parts[1][4:])
	if err != nil || month < 1 || month > 12 {
		return ReceiptNumber{}, ErrInvalidReceiptNumber
	}
	sequence, err := strconv.Atoi(parts[2])
	if err != nil || sequence < 1 {
		return ReceiptNumber{}, ErrInvalidReceiptNumber
	}
	return ReceiptNumber{Year: year, Month: time.Month(month), Sequence: sequence}, nil
}
