package app

import (
	"context"

	"github.com/MrWong99/segmentscribe/internal/observe"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
)

// meteredLoader counts the frames classified by every detector it opens.
type meteredLoader struct {
	vad.Loader
	metrics *observe.Metrics
}

func (l *meteredLoader) Load(modelPath string) (vad.Classifier, error) {
	clf, err := l.Loader.Load(modelPath)
	if err != nil {
		return nil, err
	}
	return &meteredClassifier{Classifier: clf, metrics: l.metrics}, nil
}

type meteredClassifier struct {
	vad.Classifier
	metrics *observe.Metrics
}

func (c *meteredClassifier) Classify(frame []float32, st vad.State) (float32, vad.State, error) {
	p, next, err := c.Classifier.Classify(frame, st)
	c.metrics.RecordVADFrame(context.Background(), err != nil)
	return p, next, err
}
