package driver

import (
	"github.com/pkg/errors"

	"github.com/channelport/channelport-api/internal/models"
)

// Registry resolves integration types to driver instances. Built once at
// process start and passed by reference; no global mutable state.
type Registry struct {
	drivers map[models.IntegrationType]Driver
}

func NewRegistry(drivers ...Driver) (*Registry, error) {
	r := &Registry{drivers: make(map[models.IntegrationType]Driver, len(drivers))}
	for _, d := range drivers {
		if err := r.register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(d Driver) error {
	if d == nil {
		return errors.Wrap(ErrInvalidDriver, "nil driver")
	}
	t := d.Type()
	if !t.IsValid() {
		return errors.Wrapf(ErrInvalidDriver, "driver reports unknown type %q", t)
	}
	if _, dup := r.drivers[t]; dup {
		return errors.Wrapf(ErrInvalidDriver, "duplicate driver for type %q", t)
	}
	r.drivers[t] = d
	return nil
}

// Make resolves the driver serving an integration type.
func (r *Registry) Make(t models.IntegrationType) (Driver, error) {
	d, ok := r.drivers[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "type %q", t)
	}
	return d, nil
}

// OrderImporterFor resolves a driver and requires the order import
// capability. Lack of the capability is a configuration-time error, not a
// runtime failure.
func (r *Registry) OrderImporterFor(t models.IntegrationType) (OrderImporter, error) {
	d, err := r.Make(t)
	if err != nil {
		return nil, err
	}
	importer, ok := d.(OrderImporter)
	if !ok {
		return nil, errors.Wrapf(ErrOrderImportUnsupported, "type %q", t)
	}
	return importer, nil
}

// Types lists the registered integration types.
func (r *Registry) Types() []models.IntegrationType {
	out := make([]models.IntegrationType, 0, len(r.drivers))
	for t := range r.drivers {
		out = append(out, t)
	}
	return out
}
