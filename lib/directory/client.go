package directory

import (
	"errors"
	"fmt"
)

var (
	ErrNoCode      = errors.New("directory: client has no code")
	ErrNoReceivers = errors.New("directory: client has no receivers")
	ErrNoReturnURL = errors.New("directory: client has no return_url")
)

// Client is one tenant of the relay. The JSON field names are the wire
// format of directory documents.
type Client struct {
	Code string     `json:"client"`
	Name string     `json:"name"`
	Mail string     `json:"mail"`
	Form FormConfig `json:"form"`
}

// FormConfig is the mail routing configuration of a client's form.
type FormConfig struct {
	Receivers []string `json:"receivers"`
	Subject   string   `json:"subject"`
	ReturnURL string   `json:"return_url"`
}

// Valid checks that a client record is complete enough to relay for.
func (c Client) Valid() error {
	var errs []error

	if c.Code == "" {
		errs = append(errs, ErrNoCode)
	}

	if len(c.Form.Receivers) == 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrNoReceivers, c.Code))
	}

	if c.Form.ReturnURL == "" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrNoReturnURL, c.Code))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
