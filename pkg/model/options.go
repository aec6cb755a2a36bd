package model

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Subdomains is the pool of hosts substituted for {s}.
// In yaml it can be given as a string ("abc") or as a sequence.
type Subdomains []string

// SplitSubdomains turns "abc" into [a b c].
func SplitSubdomains(s string) Subdomains {
	res := make(Subdomains, 0, len(s))
	for _, r := range s {
		res = append(res, string(r))
	}

	return res
}

func (s *Subdomains) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var str string
		if err := value.Decode(&str); err != nil {
			return err
		}

		*s = SplitSubdomains(str)
		return nil
	}

	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}

	*s = list
	return nil
}

func (s Subdomains) String() string {
	return strings.Join(s, ",")
}

type Options struct {
	MinZoom       int               `yaml:"minZoom"`
	MaxZoom       int               `yaml:"maxZoom"`
	ZoomOffset    int               `yaml:"zoomOffset"`
	ZoomReverse   bool              `yaml:"zoomReverse"`
	TileSize      int               `yaml:"tileSize"`
	MaxNativeZoom *int              `yaml:"maxNativeZoom"`
	Subdomains    Subdomains        `yaml:"subdomains"`
	TMS           bool              `yaml:"tms"`
	DetectRetina  bool              `yaml:"detectRetina"`
	CrossOrigin   bool              `yaml:"crossOrigin"`
	ErrorTileURL  string            `yaml:"errorTileUrl"`
	Params        map[string]string `yaml:"params"`
}

func DefaultOptions() Options {
	return Options{
		MinZoom:    0,
		MaxZoom:    18,
		ZoomOffset: 0,
		TileSize:   256,
		Subdomains: SplitSubdomains("abc"),
	}
}

// computed tokens, always available in url templates
var computedKeys = []string{"r", "s", "x", "y", "z"}

// option keys usable as url template tokens
var optionKeys = []string{
	"minZoom", "maxZoom", "zoomOffset", "zoomReverse", "tileSize", "maxNativeZoom",
	"subdomains", "tms", "detectRetina", "crossOrigin", "errorTileUrl",
}

var paramKeyRe = regexp.MustCompile(`^\w+$`)

// Normalize applies the retina adjustment and validates o.
// Zero values are taken as given, not replaced by defaults: callers build o from DefaultOptions()
// and override fields, as the layers file decoding does. A zero Options fails on tileSize.
// The result is never mutated afterwards.
func Normalize(o Options, p Platform) (Options, error) {
	if p == nil {
		p = StaticPlatform{}
	}

	res := o
	res.Subdomains = slices.Clone(o.Subdomains)
	res.Params = maps.Clone(o.Params)

	if o.MaxNativeZoom != nil {
		n := *o.MaxNativeZoom
		res.MaxNativeZoom = &n
	}

	if res.DetectRetina && p.IsHighDensity() && res.MaxZoom > 0 {
		res.TileSize /= 2
		res.ZoomOffset++
		res.MinZoom = max(0, res.MinZoom)
		res.MaxZoom--
	}

	if res.TileSize <= 0 {
		return Options{}, configErr("tileSize", "must be positive, got %d", res.TileSize)
	}

	if len(res.Subdomains) == 0 {
		return Options{}, configErr("subdomains", "empty subdomain list")
	}

	for i, s := range res.Subdomains {
		if s == "" {
			return Options{}, configErr("subdomains", "empty subdomain at %d", i)
		}
	}

	for k := range res.Params {
		if !paramKeyRe.MatchString(k) {
			return Options{}, configErr("params", "invalid key %q", k)
		}

		if slices.Contains(computedKeys, k) || slices.Contains(optionKeys, k) {
			return Options{}, configErr("params", "key %q is reserved", k)
		}
	}

	return res, nil
}

// templateValues returns the values of all option keys that are set.
func (o Options) templateValues() map[string]string {
	v := map[string]string{
		"minZoom":      strconv.Itoa(o.MinZoom),
		"maxZoom":      strconv.Itoa(o.MaxZoom),
		"zoomOffset":   strconv.Itoa(o.ZoomOffset),
		"zoomReverse":  strconv.FormatBool(o.ZoomReverse),
		"tileSize":     strconv.Itoa(o.TileSize),
		"subdomains":   o.Subdomains.String(),
		"tms":          strconv.FormatBool(o.TMS),
		"detectRetina": strconv.FormatBool(o.DetectRetina),
		"crossOrigin":  strconv.FormatBool(o.CrossOrigin),
	}

	if o.MaxNativeZoom != nil {
		v["maxNativeZoom"] = strconv.Itoa(*o.MaxNativeZoom)
	}

	if o.ErrorTileURL != "" {
		v["errorTileUrl"] = o.ErrorTileURL
	}

	for k, val := range o.Params {
		v[k] = val
	}

	return v
}
