package overlay

import (
	"fmt"
	"image"
	"net/url"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// QRPayload is the data encoded in the corner QR code.
type QRPayload struct {
	Owner       string
	Lender      string
	Salesperson string
	Processor   string
	Date        time.Time
}

// String renders the payload as a URL under baseURL, or as labeled lines
// when baseURL is empty.
func (p QRPayload) String(baseURL string) string {
	date := p.Date.Format("2006-01-02")
	if baseURL != "" {
		q := url.Values{}
		q.Set("user", p.Owner)
		q.Set("lender", p.Lender)
		q.Set("date", date)
		if p.Salesperson != "" {
			q.Set("salesperson", p.Salesperson)
		}
		if p.Processor != "" {
			q.Set("processor", p.Processor)
		}
		sep := "?"
		if strings.Contains(baseURL, "?") {
			sep = "&"
		}
		return baseURL + sep + q.Encode()
	}

	lines := []string{
		"Protected by Aquamark",
		"User: " + p.Owner,
		"Lender: " + p.Lender,
		"Date: " + date,
	}
	if p.Salesperson != "" {
		lines = append(lines, "Salesperson: "+p.Salesperson)
	}
	if p.Processor != "" {
		lines = append(lines, "Processor: "+p.Processor)
	}
	return strings.Join(lines, "\n")
}

// EncodeQR renders content as a square QR image of px×px pixels.
func EncodeQR(content string, px int) (image.Image, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("%w: qr encode: %v", ErrCompositionFailed, err)
	}
	// Scaling below the module count fails, so never go smaller.
	if modules := code.Bounds().Dx(); px < modules {
		px = modules
	}
	scaled, err := barcode.Scale(code, px, px)
	if err != nil {
		return nil, fmt.Errorf("%w: qr scale: %v", ErrCompositionFailed, err)
	}
	return scaled, nil
}
