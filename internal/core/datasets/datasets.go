// Package datasets registers the pipeline's datasets with the core registry.
// Import it for side effects.
package datasets

import (
	"github.com/JonMunkholm/ingestpipe/internal/core"
	"github.com/JonMunkholm/ingestpipe/internal/store"
)

// Training accumulates across runs.
var Training = core.Dataset{
	Name:     "training",
	Label:    "Training",
	SchemaID: "schema_train",
	Store:    "training",
	Table:    "training_raw_data_t",
}

// Prediction is rebuilt from scratch on every run.
var Prediction = core.Dataset{
	Name:     "prediction",
	Label:    "Prediction",
	SchemaID: "schema_predict",
	Store:    store.PredictionStore,
	Table:    "prediction_raw_data_t",
}

func init() {
	core.Register(Training)
	core.Register(Prediction)
}
