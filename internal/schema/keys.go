// Package schema holds the key names shared by the response formatter and
// the metric engine.
package schema

// Prediction keys.
const (
	Predictions = "predictions"
	URI         = "uri"
	IndexURI    = "index_uri"
	Loss        = "loss"
	Indexed     = "indexed"
	NNs         = "nns"
	Dist        = "dist"
	Last        = "last"

	Cat  = "cat"
	Prob = "prob"
	Val  = "val"
	BBox = "bbox"
	Vals = "vals"
	Mask = "mask"
	Out  = "out"

	XMin = "xmin"
	YMin = "ymin"
	XMax = "xmax"
	YMax = "ymax"
)

// Per-task list keys.
const (
	Classes = "classes"
	Vector  = "vector"
	Losses  = "losses"
	ROIs    = "rois"
	Series  = "series"
)

// Measure envelope keys.
const (
	Measure      = "measure"
	Measures     = "measures"
	TestID       = "test_id"
	TestName     = "test_name"
	TrainLoss    = "train_loss"
	Iteration    = "iteration"
	LearningRate = "learning_rate"
)

// Metric keys.
const (
	Acc         = "acc"
	AccP        = "accp"
	MeanAcc     = "meanacc"
	MeanIOU     = "meaniou"
	ClAcc       = "clacc"
	ClIOU       = "cliou"
	F1          = "f1"
	Precision   = "precision"
	Recall      = "recall"
	Precisions  = "precisions"
	Recalls     = "recalls"
	F1s         = "f1s"
	Labels      = "labels"
	CMDiag      = "cmdiag"
	CMFull      = "cmfull"
	Sensitivity = "sensitivity"
	Specificity = "specificity"
	HarmMean    = "harmmean"
	MAP         = "map"
	AUC         = "auc"
	MCC         = "mcc"
	MCLL        = "mcll"
	Gini        = "gini"
	Eucll       = "eucll"
	L1          = "l1"
	Percent     = "percent"
	Raw         = "raw"

	KLDivergence        = "kl_divergence"
	JSDivergence        = "js_divergence"
	Wasserstein         = "wasserstein"
	KolmogorovSmirnov   = "kolmogorov_smirnov"
	DistanceCorrelation = "distance_correlation"
	R2                  = "r2"
	DeltaScore          = "delta_score"
	NoSuffix            = "_no_"
	MaxErrorSuffix      = "_max_error"
	MeanErrorSuffix     = "_mean_error"
	DateSuffix          = "_date"
)

// Time-series error family keys.
const (
	TSL1    = "L1"
	TSL2    = "L2"
	TSMAPE  = "MAPE"
	TSSMAPE = "sMAPE"
	TSMASE  = "MASE"
	TSOWA   = "OWA"
	TSMAE   = "MAE"
	TSMSE   = "MSE"
)

// Raw output keys.
const (
	Truths      = "truths"
	Estimations = "estimations"
	Confidences = "confidences"
	AllLogits   = "all_logits"
	Logits      = "logits"
)

// Detection sentinels used by raw detection output.
const (
	UndefinedGT = "UNDEFINED_GT"
	NoDetection = "NO_DETECTION"
)
