package types

// TileSize is the fixed tile edge length used by the Index Generator's
// iteration order. Hardware fixes this at 16.
const TileSize = 16

// LanesPerBatch is the number of parallel MAC lanes / output channels
// processed per output-channel batch.
const LanesPerBatch = 4

// ConvConfig is the immutable per-layer convolution descriptor. Derived
// fields are computed once at construction time by NewConvConfig and are
// never recomputed afterward.
type ConvConfig struct {
	InputHeight   int
	InputWidth    int
	InputChannels int
	FilterHeight  int
	FilterWidth   int
	NumFilters    int
	Stride        int
	Padding       int

	// Derived, cached at construction.
	OutputHeight int
	OutputWidth  int
	MacsPerPixel int
}

// NewConvConfig validates the supplied dimensions and derives
// OutputHeight/OutputWidth/MacsPerPixel. It rejects any zero dimension,
// negative stride/padding, and non-exact output-dimension division.
func NewConvConfig(inputHeight, inputWidth, inputChannels, filterHeight, filterWidth, numFilters, stride, padding int) (ConvConfig, error) {
	switch {
	case inputHeight <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "input_height", Reason: "must be positive"}
	case inputWidth <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "input_width", Reason: "must be positive"}
	case inputChannels <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "input_channels", Reason: "must be positive"}
	case filterHeight <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "filter_height", Reason: "must be positive"}
	case filterWidth <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "filter_width", Reason: "must be positive"}
	case numFilters <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "num_filters", Reason: "must be positive"}
	case stride <= 0:
		return ConvConfig{}, &ConfigurationError{Field: "stride", Reason: "must be positive"}
	case padding < 0:
		return ConvConfig{}, &ConfigurationError{Field: "padding", Reason: "must be non-negative"}
	}

	heightNumer := inputHeight - filterHeight + 2*padding
	widthNumer := inputWidth - filterWidth + 2*padding

	if heightNumer < 0 || heightNumer%stride != 0 {
		return ConvConfig{}, &ConfigurationError{
			Field:  "output_height",
			Reason: "(input_height - filter_height + 2*padding) must be a non-negative exact multiple of stride",
		}
	}
	if widthNumer < 0 || widthNumer%stride != 0 {
		return ConvConfig{}, &ConfigurationError{
			Field:  "output_width",
			Reason: "(input_width - filter_width + 2*padding) must be a non-negative exact multiple of stride",
		}
	}

	return ConvConfig{
		InputHeight:   inputHeight,
		InputWidth:    inputWidth,
		InputChannels: inputChannels,
		FilterHeight:  filterHeight,
		FilterWidth:   filterWidth,
		NumFilters:    numFilters,
		Stride:        stride,
		Padding:       padding,
		OutputHeight:  heightNumer/stride + 1,
		OutputWidth:   widthNumer/stride + 1,
		MacsPerPixel:  filterHeight * filterWidth * inputChannels,
	}, nil
}

// InputSize is the element count of the flat input activation array.
func (c ConvConfig) InputSize() int {
	return c.InputHeight * c.InputWidth * c.InputChannels
}

// WeightSize is the element count of the flat weight array.
func (c ConvConfig) WeightSize() int {
	return c.NumFilters * c.FilterHeight * c.FilterWidth * c.InputChannels
}

// TotalMacs is the expected total number of MAC descriptors the Index
// Generator emits for this configuration.
func (c ConvConfig) TotalMacs() int {
	return c.OutputHeight * c.OutputWidth * c.NumFilters * c.MacsPerPixel
}

// OutputChannelBatches is the number of 4-lane output-channel batches.
func (c ConvConfig) OutputChannelBatches() int {
	return (c.NumFilters + LanesPerBatch - 1) / LanesPerBatch
}

// QuantConfig is the immutable per-layer quantization descriptor.
type QuantConfig struct {
	ZeroPointIn     int32
	ZeroPointOut    int32
	ZeroPointWeight int32
	ScaleFactor     uint32 // Q8.24 fixed point
	EnableReLU      bool
}

// NewQuantConfig constructs a QuantConfig. It performs no range validation
// on the zero-points/scale beyond their declared widths; any 32-bit value
// is a legal (if perhaps nonsensical) quantization parameter.
func NewQuantConfig(zeroPointIn, zeroPointOut, zeroPointWeight int32, scaleFactor uint32, enableReLU bool) QuantConfig {
	return QuantConfig{
		ZeroPointIn:     zeroPointIn,
		ZeroPointOut:    zeroPointOut,
		ZeroPointWeight: zeroPointWeight,
		ScaleFactor:     scaleFactor,
		EnableReLU:      enableReLU,
	}
}

// OutputConfig describes the Output Storage geometry: it is derived from
// ConvConfig but kept as its own value so output-only consumers (the
// storage unit, the pooling driver) don't need the full convolution
// descriptor.
type OutputConfig struct {
	OutputHeight   int
	OutputWidth    int
	OutputChannels int
	OutputBaseAddr int
	EnablePooling  bool
}

// OutputConfigFromConv derives an OutputConfig from a ConvConfig.
func OutputConfigFromConv(c ConvConfig, outputBaseAddr int, enablePooling bool) OutputConfig {
	return OutputConfig{
		OutputHeight:   c.OutputHeight,
		OutputWidth:    c.OutputWidth,
		OutputChannels: c.NumFilters,
		OutputBaseAddr: outputBaseAddr,
		EnablePooling:  enablePooling,
	}
}

// NumOutputs is the total element count of the output tensor.
func (o OutputConfig) NumOutputs() int {
	return o.OutputHeight * o.OutputWidth * o.OutputChannels
}

// NumWords is the number of 32-bit BRAM words needed to hold NumOutputs
// packed bytes.
func (o OutputConfig) NumWords() int {
	return (o.NumOutputs() + 3) / 4
}

// MacConfig holds the zero-points the Staged MAC Cluster subtracts before
// multiplying. It is a narrow view of QuantConfig so the MAC package does
// not need to import the output-zero-point / scale / ReLU fields it never
// touches.
type MacConfig struct {
	ZeroPointIn     int32
	ZeroPointWeight int32
}

// MacConfigFromQuant narrows a QuantConfig to the fields the MAC cluster
// needs.
func MacConfigFromQuant(q QuantConfig) MacConfig {
	return MacConfig{ZeroPointIn: q.ZeroPointIn, ZeroPointWeight: q.ZeroPointWeight}
}

// LayerSpec is the YAML-decoded envelope for one layer invocation, as
// produced by the `accelsim` CLI's config loader.
type LayerSpec struct {
	Name string `yaml:"name"`

	InputHeight   int `yaml:"input_height"`
	InputWidth    int `yaml:"input_width"`
	InputChannels int `yaml:"input_channels"`
	FilterHeight  int `yaml:"filter_height"`
	FilterWidth   int `yaml:"filter_width"`
	NumFilters    int `yaml:"num_filters"`
	Stride        int `yaml:"stride"`
	Padding       int `yaml:"padding"`

	ZeroPointIn     int32  `yaml:"zero_point_in"`
	ZeroPointOut    int32  `yaml:"zero_point_out"`
	ZeroPointWeight int32  `yaml:"zero_point_weight"`
	ScaleFactor     uint32 `yaml:"scale_factor"`
	EnableReLU      bool   `yaml:"enable_relu"`

	InputBaseAddr  int `yaml:"input_base_addr"`
	WeightBaseAddr int `yaml:"weight_base_addr"`
	OutputBaseAddr int `yaml:"output_base_addr"`

	EnablePooling bool `yaml:"enable_pooling"`

	InputFile  string `yaml:"input_file"`
	WeightFile string `yaml:"weight_file"`
	OutputFile string `yaml:"output_file"`
}

// ToConvConfig builds the ConvConfig named by this spec.
func (s LayerSpec) ToConvConfig() (ConvConfig, error) {
	return NewConvConfig(s.InputHeight, s.InputWidth, s.InputChannels,
		s.FilterHeight, s.FilterWidth, s.NumFilters, s.Stride, s.Padding)
}

// ToQuantConfig builds the QuantConfig named by this spec.
func (s LayerSpec) ToQuantConfig() QuantConfig {
	return NewQuantConfig(s.ZeroPointIn, s.ZeroPointOut, s.ZeroPointWeight, s.ScaleFactor, s.EnableReLU)
}
