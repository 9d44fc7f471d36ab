package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golobby/cast"
	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

const tagDefault = "default"

// Load builds a Config from the given files, in order, and then the
// environment. Later sources override earlier ones. Fields left empty get
// their `default` tag value and the result is validated.
func Load(paths ...string) (*Config, error) {
	cfg := &Config{}
	if err := Feed(cfg, paths...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Feed fills any tagged struct the way Load fills Config.
func Feed(target any, paths ...string) error {
	builder := config.New()
	for _, p := range paths {
		f, err := feederFor(p)
		if err != nil {
			return err
		}
		builder.AddFeeder(f)
	}
	builder.AddFeeder(feeder.Env{})
	builder.AddStruct(target)
	if err := builder.Feed(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigFeed, err)
	}
	if err := ApplyDefaults(target); err != nil {
		return err
	}
	return Validate(target)
}

func feederFor(path string) (config.Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return feeder.Yaml{Path: path}, nil
	case ".toml":
		return feeder.Toml{Path: path}, nil
	case ".json":
		return feeder.Json{Path: path}, nil
	case ".env":
		return feeder.DotEnv{Path: path}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

var validate = validator.New()

// Validate checks the `validate` tags of target.
func Validate(target any) error {
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
	}
	return nil
}

// ApplyDefaults sets every zero-valued field that has a `default` tag.
func ApplyDefaults(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrConfigNotPointer
	}
	return applyStructDefaults(v.Elem())
}

func applyStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := applyStructDefaults(field); err != nil {
				return err
			}
			continue
		}
		def, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			continue
		}
		if err := setDefault(field, def); err != nil {
			return fmt.Errorf("%s: %w", sf.Name, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setDefault(field reflect.Value, def string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(def)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDefaultValueParse, err)
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		converted, err := cast.FromType(def, field.Type())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDefaultValueParse, err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Type())
		}
		parts := strings.Split(def, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Type())
}
