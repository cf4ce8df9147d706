package protocol

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/train-control-panel/backend/internal/model"
)

// Property: for every in-range speed, encoding then reading the speed
// byte back recovers the speed exactly; out-of-range speeds never
// produce a frame.
func TestSpeedCommandRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("in-range speeds round-trip through the frame", prop.ForAll(
		func(speed int) bool {
			frame, err := EncodeSpeedCommand(DrivePort, speed)
			if err != nil {
				return false
			}
			if len(frame) != 9 || frame[3] != DrivePort {
				return false
			}
			return int(int8(frame[6])) == speed
		},
		gen.IntRange(model.MinSpeed, model.MaxSpeed),
	))

	properties.Property("out-of-range speeds are rejected without a frame", prop.ForAll(
		func(speed int) bool {
			frame, err := EncodeSpeedCommand(DrivePort, speed)
			return err != nil && frame == nil
		},
		gen.OneGenOf(
			gen.IntRange(model.MaxSpeed+1, 10000),
			gen.IntRange(-10000, model.MinSpeed-1),
		),
	))

	properties.TestingRun(t)
}

// Property: the telemetry decoder is total. Any byte slice decodes to
// exactly one variant and never panics, and every decoded value carries
// a non-empty summary for the event log.
func TestDecodeTelemetryTotalityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("decoding arbitrary bytes never panics", prop.ForAll(
		func(raw []byte) bool {
			tel := DecodeTelemetry(raw)
			if tel == nil {
				return false
			}
			return tel.Summary() != ""
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
