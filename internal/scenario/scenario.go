// Package scenario loads scripted storefront sessions from YAML and plays
// them through the cart dispatcher, chat session and catalog filters.
package scenario

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/cartsync/internal/cartsync"
	"github.com/angelmondragon/cartsync/internal/storefront"
)

// Scenario is one scripted visit.
type Scenario struct {
	Name string `yaml:"name" validate:"required"`
	Seed Seed   `yaml:"seed"`
	// Page is the catalog URL the visit starts on.
	Page  string `yaml:"page" validate:"omitempty,uri"`
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Seed is the state the page renders with before any step runs.
type Seed struct {
	Favorites []int `yaml:"favorites" validate:"dive,gt=0"`
	// Cart maps product id to quantity; only honored by the fake storefront.
	Cart map[int]int `yaml:"cart" validate:"dive,keys,gt=0,endkeys,gt=0"`
}

// Step does exactly one thing: an event, a chat message, a filter change,
// a pagination fragment to patch, a pause, or a group of steps run concurrently.
// Paginate holds server-rendered pagination markup whose links get the
// current filters.
type Step struct {
	Event    string            `yaml:"event" validate:"omitempty,oneof=cart-button close-cart add-to-cart remove-line quantity favorite"`
	Product  int               `yaml:"product" validate:"gte=0"`
	Line     int               `yaml:"line" validate:"gte=0"`
	Action   string            `yaml:"action" validate:"omitempty,oneof=increase decrease"`
	Chat     string            `yaml:"chat"`
	Filters  map[string]string `yaml:"filters"`
	Paginate string            `yaml:"paginate"`
	Wait     time.Duration     `yaml:"wait" validate:"gte=0"`
	Parallel []Step            `yaml:"parallel" validate:"omitempty,dive"`
}

func (s Step) kinds() int {
	n := 0
	if s.Event != "" {
		n++
	}
	if s.Chat != "" {
		n++
	}
	if len(s.Filters) > 0 {
		n++
	}
	if s.Paginate != "" {
		n++
	}
	if s.Wait > 0 {
		n++
	}
	if len(s.Parallel) > 0 {
		n++
	}
	return n
}

// CartEvent converts an event step into a dispatcher event.
func (s Step) CartEvent() cartsync.Event {
	return cartsync.Event{
		Kind:      cartsync.EventKind(s.Event),
		ProductID: s.Product,
		LineID:    s.Line,
		Action:    storefront.QuantityAction(s.Action),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		step := sl.Current().Interface().(Step)
		if step.kinds() != 1 {
			sl.ReportError(step.Event, "event", "Event", "one_action", "")
		}
	}, Step{})
	return v
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a scenario.
func Parse(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := validate.Struct(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}
