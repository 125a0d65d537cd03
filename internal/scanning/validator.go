package scanning

import (
	stderrors "errors"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	largeRangeHosts = 100
	manyPorts       = 20
	shortTimeoutMS  = 1000
)

var baseIPPattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// ValidationResult lists fatal errors and advisory warnings for a request.
type ValidationResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		// Registration only fails for an empty tag or nil func.
		_ = v.RegisterValidation("baseip", func(fl validator.FieldLevel) bool {
			return IsBaseIP(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// IsBaseIP reports whether s is three dotted octets, each 0-255.
func IsBaseIP(s string) bool {
	m := baseIPPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	for _, octet := range m[1:] {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// Validate checks a request without side effects. A result that is not OK
// must stop the scan before any probe is sent.
func Validate(req ScanRequest) ValidationResult {
	res := ValidationResult{Errors: []string{}}

	if err := requestValidator().Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
		for _, fe := range verrs {
			res.Errors = append(res.Errors, describeFieldError(fe))
		}
		return res
	}

	res.OK = true
	res.Warnings = warningsFor(req)
	return res
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "baseip":
		return fmt.Sprintf("%s %q must be three dotted octets, e.g. 192.168.1", field, fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than startRange", field)
	case "min", "max":
		if strings.HasPrefix(field, "ports[") {
			return fmt.Sprintf("%s must be between 1 and 65535, got %v", field, fe.Value())
		}
		if field == "ports" {
			return "ports must contain at least one port"
		}
		return fmt.Sprintf("%s must be %s %s, got %v", field, boundWord(fe.Tag()), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, n, _ := net.ParseCIDR(cidr)
		nets = append(nets, n)
	}
	return nets
}()

func isPrivate(baseIP string) bool {
	ip := net.ParseIP(baseIP + ".0")
	if ip == nil {
		return false
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func warningsFor(req ScanRequest) []string {
	var warnings []string
	if !isPrivate(req.BaseIP) {
		warnings = append(warnings, fmt.Sprintf("%s is not a private network range", req.BaseIP))
	}
	if hosts := req.EndRange - req.StartRange + 1; hosts > largeRangeHosts {
		warnings = append(warnings, fmt.Sprintf("scanning %d hosts may take a while", hosts))
	}
	if len(req.Ports) > manyPorts {
		warnings = append(warnings, fmt.Sprintf("%d ports per host increases scan time", len(req.Ports)))
	}
	if req.TimeoutMS < shortTimeoutMS {
		warnings = append(warnings, fmt.Sprintf("timeout of %dms may miss slow hosts", req.TimeoutMS))
	}
	return warnings
}
