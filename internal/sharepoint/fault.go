package sharepoint

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrRequestFailed is returned when the service cannot be reached or
// answers without a usable SOAP fault.
var ErrRequestFailed = errors.New("sharepoint: request failed")

// FaultError is a SOAP fault reported by the Lists service.
type FaultError struct {
	// Code is the SharePoint errorcode, e.g. "0x82000006".
	Code string
	// Message is the SharePoint errorstring.
	Message string
	// Fault is the SOAP faultstring.
	Fault string
}

func (e *FaultError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Fault
	}
	if e.Code == "" {
		return "sharepoint fault: " + msg
	}
	return fmt.Sprintf("sharepoint fault %s: %s", e.Code, msg)
}

// parseFault extracts the fault fields from a SOAP response body. It
// returns nil when the body holds no fault.
func parseFault(body []byte) *FaultError {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var f FaultError
	found := false

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var dst *string
		switch start.Name.Local {
		case "errorcode":
			dst = &f.Code
		case "errorstring":
			dst = &f.Message
		case "faultstring":
			dst = &f.Fault
		default:
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return nil
		}
		*dst = strings.TrimSpace(text)
		found = true
	}

	if !found {
		return nil
	}
	return &f
}
