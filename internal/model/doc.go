// Package model runs the exported yield regressor and crop classifier.
//
// LoadDir reads five JSON artifacts from one directory. They are produced
// from the trained scikit-learn pipelines by scripts/export_models.py; the
// files under testdata are small hand-written examples of each.
//
// Transformer (yield_prediction_transformer.json, crop_recommendation_transformer.json):
//
//	{"n_features_in": 8, "encoders": [{"kind": "onehot", "column": 0, "categories": ["Jagung", "Padi"]}]}
//
// kind is "onehot" or "ordinal" and column may count from the end when
// negative. Encoded columns come first, the rest pass through in order.
//
// Forest (yield_prediction_regressor.json, crop_recommendation_classifier.json):
//
//	{"kind": "regressor", "n_features": 9, "trees": [{
//	    "children_left": [1, -1, -1], "children_right": [2, -1, -1],
//	    "feature": [1, -2, -2], "threshold": [0.5, -2, -2],
//	    "value": [[0], [0.25], [0.5]]}]}
//
// The tree arrays are tree_.children_left, children_right, feature,
// threshold and value[:, 0, :] of each estimator. Classifiers also carry
// "classes", the forest's classes_.
//
// Label encoder (crop_recommendation_labelencoder.json):
//
//	{"classes": ["Cabai", "Bayam", "Kopi"]}
package model
