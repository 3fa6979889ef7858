package model

// Timestamps are epoch milliseconds so that archives round-trip exactly.

// ActivityType enumerates the kinds of activity recorded against a car.
type ActivityType string

const (
	ActivityRefueling     ActivityType = "REFUELING"
	ActivityMechanicVisit ActivityType = "MECHANIC_VISIT"
	ActivityOilChange     ActivityType = "OIL_CHANGE"
	ActivityTireSwitch    ActivityType = "TIRE_SWITCH"
	ActivityCarWash       ActivityType = "CAR_WASH"
	ActivityAccident      ActivityType = "ACCIDENT"
	ActivityCustom        ActivityType = "CUSTOM"
)

// Car is a tracked vehicle. ID is assigned by the data store on insert;
// zero means not yet persisted.
type Car struct {
	ID                 int64  `json:"id"`
	Brand              string `json:"brand" validate:"notblank"`
	Model              string `json:"model" validate:"notblank"`
	Year               int    `json:"year" validate:"gte=1900,lte=2100"`
	RegistrationNumber string `json:"registrationNumber"`
	VIN                string `json:"vin"`
	StartingOdometer   int64  `json:"startingOdometer"`
	InsuranceExpiry    *int64 `json:"insuranceExpiry"`
	RegistrationExpiry *int64 `json:"registrationExpiry"`
	CreatedAt          int64  `json:"createdAt"`
	IsActive           bool   `json:"isActive"`
}

// Activity is a maintenance or usage event for a car.
type Activity struct {
	ID        int64        `json:"id"`
	CarID     int64        `json:"carId"` // Foreign key to Car
	Type      ActivityType `json:"type"`
	Date      int64        `json:"date"`
	Odometer  int64        `json:"odometer"`
	Cost      float64      `json:"cost"`
	Currency  string       `json:"currency"`
	Notes     string       `json:"notes"`
	CreatedAt int64        `json:"createdAt"`
}

// ActivityImage is a photo attached to an activity.
type ActivityImage struct {
	ID            int64  `json:"id"`
	ActivityID    int64  `json:"activityId"` // Foreign key to Activity
	ImagePath     string `json:"imagePath"`
	ThumbnailPath string `json:"thumbnailPath"`
	CreatedAt     int64  `json:"createdAt"`
}

// Reminder is a scheduled notification for a car.
type Reminder struct {
	ID          int64  `json:"id"`
	CarID       int64  `json:"carId"` // Foreign key to Car
	Message     string `json:"message"`
	TriggerTime int64  `json:"triggerTime"`
	IsEnabled   bool   `json:"isEnabled"`
	IsCompleted bool   `json:"isCompleted"`
	CreatedAt   int64  `json:"createdAt"`
}

// RefuelingDetails extends a REFUELING activity (1:1, keyed by activity).
type RefuelingDetails struct {
	ActivityID    int64   `json:"activityId"`
	Liters        float64 `json:"liters"`
	PricePerLiter float64 `json:"pricePerLiter"`
	FuelType      string  `json:"fuelType"`
	IsFullTank    bool    `json:"isFullTank"`
}
