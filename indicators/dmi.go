package indicators

import "math"

// DMI implements Wilder's Directional Movement Index over a mark-price
// stream (trend strength plus direction).
// Usage:
//
//	dmi := indicators.NewDMI(14)
//	dmi.Update(mark)
//	if dmi.Ready() && dmi.ADX() >= 20 { ... }
type DMI struct {
	Period int

	prev     float64
	havePrev bool

	// Wilder-smoothed values after warmup:
	tr  float64
	pdm float64
	mdm float64

	adx   float64
	dxSum float64

	// count of marks processed (including the first prev seed)
	count int
	ready bool
}

func NewDMI(period int) *DMI {
	if period <= 0 {
		period = 14
	}
	return &DMI{Period: period}
}

func (d *DMI) Ready() bool { return d.ready }

// ADX returns the smoothed trend-strength value, 0..100.
func (d *DMI) ADX() float64 { return d.adx }

// PDI and MDI return the directional indicator values; PDI > MDI means the
// measured trend is up.
func (d *DMI) PDI() float64 {
	if d.tr == 0 {
		return 0
	}
	return 100 * d.pdm / d.tr
}

func (d *DMI) MDI() float64 {
	if d.tr == 0 {
		return 0
	}
	return 100 * d.mdm / d.tr
}

// Reset discards all accumulated state. The next Update re-seeds warmup.
func (d *DMI) Reset() {
	*d = DMI{Period: d.Period}
}

// Update consumes the next mark price.
// Readiness follows Wilder's warmup: Period samples to seed the smoothed
// TR/+DM/-DM averages, then Period DX values to seed ADX, so 2*Period marks
// after the initial seed.
func (d *DMI) Update(mark float64) {
	if !d.havePrev {
		d.prev = mark
		d.havePrev = true
		d.count = 1
		return
	}

	// Directional movement from consecutive marks. On a tick stream there
	// is no high/low, so up and down movement are mutually exclusive.
	move := mark - d.prev
	var pdm, mdm float64
	if move > 0 {
		pdm = move
	} else {
		mdm = -move
	}
	tr := math.Abs(move)

	d.prev = mark
	d.count++

	// Warmup phase A: accumulate initial averages up to Period samples.
	if d.count <= d.Period+1 {
		d.tr += tr
		d.pdm += pdm
		d.mdm += mdm

		if d.count == d.Period+1 {
			p := float64(d.Period)
			d.tr /= p
			d.pdm /= p
			d.mdm /= p
		}
		return
	}

	// Wilder smoothing for TR/+DM/-DM.
	p := float64(d.Period)
	d.tr = (d.tr*(p-1) + tr) / p
	d.pdm = (d.pdm*(p-1) + pdm) / p
	d.mdm = (d.mdm*(p-1) + mdm) / p

	if d.tr == 0 {
		return
	}

	pdi := 100 * d.pdm / d.tr
	mdi := 100 * d.mdm / d.tr
	den := pdi + mdi
	if den == 0 {
		return
	}
	dx := 100 * math.Abs(pdi-mdi) / den

	// Warmup phase B: seed ADX with the average of the first Period DX
	// values, then switch to Wilder smoothing.
	firstDX := d.Period + 2
	seedADX := 2*d.Period + 1

	if !d.ready {
		if d.count >= firstDX && d.count <= seedADX {
			d.dxSum += dx
		}
		if d.count == seedADX {
			d.adx = d.dxSum / p
			d.ready = true
		}
		return
	}

	d.adx = (d.adx*(p-1) + dx) / p
}
