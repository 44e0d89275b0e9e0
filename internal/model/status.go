package model

import (
	"errors"
	"fmt"
)

type Status int

const (
	NotFinished Status = iota
	FinStop
	FinTrans
	FinBS
	FinRecoil
	FinNoRecoil
	FinMissDet
	FinOutDet
	FinDet
	FinMaxDepth
	FinRecTrans
)

var statusNames = [...]string{
	"NOT_FINISHED",
	"FIN_STOP",
	"FIN_TRANS",
	"FIN_BS",
	"FIN_RECOIL",
	"FIN_NO_RECOIL",
	"FIN_MISS_DET",
	"FIN_OUT_DET",
	"FIN_DET",
	"FIN_MAXDEPTH",
	"FIN_RECTRANS",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

var ErrAtomIndex = errors.New("model: sampled atom index out of range")

// IonError identifies the history, layer and transport stage that failed.
type IonError struct {
	Stage string
	Ion   int
	Layer int
	Err   error
}

func (e *IonError) Error() string {
	return fmt.Sprintf("ion %d, layer %d, %s: %v", e.Ion, e.Layer, e.Stage, e.Err)
}

func (e *IonError) Unwrap() error {
	return e.Err
}
