// Package metadata implements the per-tick metadata record that pipeline
// modules append structured data to. A Record is owned exclusively by the
// tick that created it: modules append detections and module-scoped data
// while the tick runs, and Finalize produces the serializable snapshot
// handed to the publisher.
package metadata

// Detection is a single decoded inference result. Box coordinates are
// normalized to [0,1] relative to the model input dimensions.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// initialDetectionCapacity is a performance tuning knob, not a limit.
// The backing slice grows as needed.
const initialDetectionCapacity = 32

// Record accumulates the outputs of all modules for one frame.
// It is not safe for concurrent use; the pipeline runs modules
// sequentially on a single goroutine.
type Record struct {
	sequence     int64
	timestampUS  int64
	sceneHash    string
	sceneChanged bool
	motionScore  float64
	detections   []Detection
	modules      map[string]any
}

// New creates an empty record for the given frame identity.
func New(sequence, timestampUS int64) *Record {
	return &Record{
		sequence:    sequence,
		timestampUS: timestampUS,
		detections:  make([]Detection, 0, initialDetectionCapacity),
		modules:     make(map[string]any),
	}
}

// Sequence returns the frame sequence id the record belongs to.
func (r *Record) Sequence() int64 { return r.sequence }

// TimestampUS returns the capture timestamp in microseconds.
func (r *Record) TimestampUS() int64 { return r.timestampUS }

// AddDetection appends a detection. Insertion order is preserved in the
// finalized snapshot.
func (r *Record) AddDetection(det Detection) {
	r.detections = append(r.detections, det)
}

// Detections returns the detections appended so far.
func (r *Record) Detections() []Detection {
	return r.detections
}

// DetectionCount returns the number of detections appended so far.
func (r *Record) DetectionCount() int {
	return len(r.detections)
}

// SetModuleData inserts or overwrites the free-form contribution for a
// module. Calling it twice with the same name replaces the earlier value.
func (r *Record) SetModuleData(moduleName string, value any) {
	r.modules[moduleName] = value
}

// ModuleData returns the contribution stored for a module, if any.
func (r *Record) ModuleData(moduleName string) (any, bool) {
	v, ok := r.modules[moduleName]
	return v, ok
}

// SetMotionScore records the scalar motion score for this frame.
func (r *Record) SetMotionScore(score float64) {
	r.motionScore = score
}

// SetScene records the scene hash and whether it differs from the
// previous frame's.
func (r *Record) SetScene(hash string, changed bool) {
	r.sceneHash = hash
	r.sceneChanged = changed
}

// Snapshot is the serializable form of a finalized record. Field order is
// fixed for wire and log stability.
type Snapshot struct {
	Sequence     int64          `json:"sequence"`
	Timestamp    int64          `json:"timestamp"`
	SceneHash    string         `json:"scene_hash"`
	SceneChanged bool           `json:"scene_changed"`
	MotionScore  float64        `json:"motion_score"`
	Detections   []Detection    `json:"detections"`
	Modules      map[string]any `json:"modules"`
}

// Finalize produces the snapshot handed to the publisher. Empty detection
// and module collections serialize as empty, never null.
func (r *Record) Finalize() Snapshot {
	return Snapshot{
		Sequence:     r.sequence,
		Timestamp:    r.timestampUS,
		SceneHash:    r.sceneHash,
		SceneChanged: r.sceneChanged,
		MotionScore:  r.motionScore,
		Detections:   r.detections,
		Modules:      r.modules,
	}
}
