// Package detect defines the object-detection collaborator used by frame
// workers and its OpenCV-backed production implementation.
package detect

import (
	"fmt"
	"image"
)

// Detection is one detected object in a frame.
type Detection struct {
	ClassID    int
	Confidence float64
	Box        image.Rectangle
}

// Detector runs inference on one encoded frame, synchronously.
type Detector interface {
	Detect(frame []byte) ([]Detection, error)
}

// Factory builds one Detector instance. Workers each get their own
// because the underlying network is not safe for concurrent use.
type Factory func() (Detector, error)

// classLabels maps the supported detection class ids to human labels.
var classLabels = map[int]string{
	0:  "person",
	1:  "bicycle",
	2:  "car",
	3:  "motorcycle",
	14: "bird",
	15: "cat",
	16: "dog",
	24: "backpack",
	25: "umbrella",
	26: "handbag",
}

// Label returns the human label for a class id.
func Label(classID int) string {
	if label, exists := classLabels[classID]; exists {
		return label
	}
	return fmt.Sprintf("unknown_%d", classID)
}

// Classes returns the supported class ids and their labels.
func Classes() map[int]string {
	out := make(map[int]string, len(classLabels))
	for id, label := range classLabels {
		out[id] = label
	}
	return out
}
