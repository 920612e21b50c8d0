package policy

const gib = 1024 * 1024 * 1024

// defaultRepackPolicy carries the stock repack thresholds applied to
// streams that have no explicit section and no Default section.
func defaultRepackPolicy() RepackPolicy {
	return RepackPolicy{
		ProcessingVersion: 1,
		MaxSizeSingleLumi: 10 * gib,
		MaxSizeMultiLumi:  8 * gib,
		MinInputSize:      21 * gib / 10,
		MaxInputSize:      4 * gib,
		MaxEdmSize:        10 * gib,
		MaxOverSize:       8 * gib,
		MaxInputEvents:    10 * 1000 * 1000,
		MaxInputFiles:     1000,
		MaxLatency:        12 * 3600,
		BlockCloseDelay:   24 * 3600,
	}
}

func defaultStreamPolicy() StreamPolicy {
	repack := defaultRepackPolicy()
	return StreamPolicy{
		Style:  StyleBulk,
		Repack: &repack,
	}
}

func defaultExpressPolicy() ExpressPolicy {
	return ExpressPolicy{
		WriteDQM:          true,
		ProcessingVersion: 1,
		MaxInputRate:      23 * 1000,
		MaxInputEvents:    200,
		MaxInputSize:      2 * gib,
		MaxInputFiles:     500,
		MaxLatency:        15 * 23,
		BlockCloseDelay:   3600,
	}
}
