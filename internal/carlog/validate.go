package carlog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"carlog/internal/model"
)

// Violation is a single broken dataset invariant.
type Violation struct {
	Kind    Kind
	Message string
}

// Validation is the outcome of checking a dataset.
type Validation struct {
	Violations []Violation
}

// OK returns true if no invariant is violated.
func (v *Validation) OK() bool {
	return len(v.Violations) == 0
}

// Err returns nil for a valid dataset. Otherwise it returns an error of the
// first violation's kind whose message lists every violation.
func (v *Validation) Err() error {
	if v.OK() {
		return nil
	}
	msgs := make([]string, len(v.Violations))
	for i, violation := range v.Violations {
		msgs[i] = violation.Message
	}
	return NewError(v.Violations[0].Kind, "dataset validation failed", errors.New(strings.Join(msgs, "; ")))
}

func (v *Validation) add(kind Kind, format string, args ...any) {
	v.Violations = append(v.Violations, Violation{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

var fieldValidator = newFieldValidator()

func newFieldValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("registering notblank validation: %v", err))
	}
	return v
}

// Validate checks the structural and referential integrity of ds.
// Structural checks (version, car list, car fields) stop at the first
// failure. Duplicate identifiers are all reported, and referential checks
// run only when every identifier is unique.
func Validate(ds *model.Dataset) *Validation {
	v := &Validation{}

	if ds == nil {
		v.add(KindCorruptData, "dataset is missing")
		return v
	}
	if ds.Version != model.DatasetVersion {
		v.add(KindCorruptData, "unsupported dataset version %d (supported: %d)", ds.Version, model.DatasetVersion)
		return v
	}
	if len(ds.Cars) == 0 {
		v.add(KindCorruptData, "dataset contains no cars")
		return v
	}
	for i := range ds.Cars {
		if msg := checkCarFields(&ds.Cars[i]); msg != "" {
			v.add(KindCorruptData, "car %d: %s", ds.Cars[i].ID, msg)
			return v
		}
	}

	cars := make(map[int64]bool, len(ds.Cars))
	for _, car := range ds.Cars {
		if cars[car.ID] {
			v.add(KindCorruptData, "duplicate car id %d", car.ID)
		}
		cars[car.ID] = true
	}
	activities := make(map[int64]bool, len(ds.Activities))
	for _, a := range ds.Activities {
		if activities[a.ID] {
			v.add(KindCorruptData, "duplicate activity id %d", a.ID)
		}
		activities[a.ID] = true
	}
	refuelings := make(map[int64]bool, len(ds.RefuelingDetails))
	for _, rd := range ds.RefuelingDetails {
		if refuelings[rd.ActivityID] {
			v.add(KindCorruptData, "duplicate refueling details for activity %d", rd.ActivityID)
		}
		refuelings[rd.ActivityID] = true
	}
	if !v.OK() {
		return v
	}

	for _, a := range ds.Activities {
		if !cars[a.CarID] {
			v.add(KindReferentialIntegrity, "activity %d references unknown car %d", a.ID, a.CarID)
		}
	}
	for _, img := range ds.ActivityImages {
		if !activities[img.ActivityID] {
			v.add(KindReferentialIntegrity, "image %d references unknown activity %d", img.ID, img.ActivityID)
		}
	}
	for _, rd := range ds.RefuelingDetails {
		if !activities[rd.ActivityID] {
			v.add(KindReferentialIntegrity, "refueling details reference unknown activity %d", rd.ActivityID)
		}
	}
	for _, r := range ds.Reminders {
		if !cars[r.CarID] {
			v.add(KindReferentialIntegrity, "reminder %d references unknown car %d", r.ID, r.CarID)
		}
	}

	return v
}

// ValidateCar checks a single car's fields before it is stored.
func ValidateCar(car *model.Car) error {
	if msg := checkCarFields(car); msg != "" {
		return fmt.Errorf("invalid car: %s", msg)
	}
	return nil
}

// checkCarFields returns a description of the first invalid field, or "".
func checkCarFields(car *model.Car) string {
	err := fieldValidator.Struct(car)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "notblank":
		return fmt.Sprintf("%s must not be blank", strings.ToLower(fe.Field()))
	case "gte", "lte":
		return fmt.Sprintf("%s %v is outside 1900-2100", strings.ToLower(fe.Field()), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s check", strings.ToLower(fe.Field()), fe.Tag())
	}
}

// CheckImageFiles counts images whose files are absent from the extracted
// archive. A dataset stays valid with missing files; the result is a
// warning, or nil when every file is present.
func CheckImageFiles(ds *model.Dataset, archive *DecodedArchive) []string {
	missing := 0
	for _, img := range ds.ActivityImages {
		if img.ImagePath == "" {
			continue
		}
		if _, err := os.Stat(archive.ImageFile(img.ImagePath)); err != nil {
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%d of %d image files are missing from the archive; those images will be restored without files",
		missing, len(ds.ActivityImages))}
}
