package detect

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// NetDetector runs a DNN object-detection model on single frames. One
// instance per worker; the network is not safe for concurrent Forward calls.
type NetDetector struct {
	net        gocv.Net
	modelPath  string
	configPath string
}

// NewNetDetector loads the detection network from the model and config files.
func NewNetDetector(modelPath, configPath string) (*NetDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &NetDetector{
		net:        net,
		modelPath:  modelPath,
		configPath: configPath,
	}, nil
}

// tfClassIDs maps the 1-based class ids the TF SSD COCO model emits to
// the ids used by class labels and per-class detection settings. Model
// classes outside this table are dropped.
var tfClassIDs = map[int]int{
	1:  0,  // person
	2:  1,  // bicycle
	3:  2,  // car
	4:  3,  // motorcycle
	16: 14, // bird
	17: 15, // cat
	18: 16, // dog
	27: 24, // backpack
	28: 25, // umbrella
	31: 26, // handbag
}

// NewNetFactory returns a Factory producing NetDetectors for the given model.
func NewNetFactory(modelPath, configPath string) Factory {
	return func() (Detector, error) {
		return NewNetDetector(modelPath, configPath)
	}
}

// Detect decodes the frame and returns every reported detection. Confidence
// filtering is the caller's decision.
func (d *NetDetector) Detect(frame []byte) ([]Detection, error) {
	mat, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	var results []Detection

	outputReshaped := output.Reshape(1, output.Total()/7)
	for i := 0; i < outputReshaped.Rows(); i++ {
		confidence := outputReshaped.GetFloatAt(i, 2)
		if confidence <= 0 {
			continue
		}

		classID, ok := tfClassIDs[int(outputReshaped.GetFloatAt(i, 1))]
		if !ok {
			continue
		}
		x1 := int(outputReshaped.GetFloatAt(i, 3) * float32(mat.Cols()))
		y1 := int(outputReshaped.GetFloatAt(i, 4) * float32(mat.Rows()))
		x2 := int(outputReshaped.GetFloatAt(i, 5) * float32(mat.Cols()))
		y2 := int(outputReshaped.GetFloatAt(i, 6) * float32(mat.Rows()))

		results = append(results, Detection{
			ClassID:    classID,
			Confidence: float64(confidence),
			Box:        image.Rect(x1, y1, x2, y2),
		})
	}

	return results, nil
}

// Close releases the network.
func (d *NetDetector) Close() {
	d.net.Close()
}
