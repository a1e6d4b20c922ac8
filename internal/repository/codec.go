package repository

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var tDecimal = reflect.TypeOf(decimal.Decimal{})

// NewRegistry returns the default BSON registry plus a codec storing money as
// decimal strings, so amounts round-trip without float drift.
func NewRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tDecimal, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(tDecimal, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDecimal {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}
	return vw.WriteString(val.Interface().(decimal.Decimal).String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDecimal {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch vr.Type() {
	case bsontype.String:
		var s string
		if s, err = vr.ReadString(); err == nil {
			d, err = decimal.NewFromString(s)
		}
	case bsontype.Double:
		var f float64
		if f, err = vr.ReadDouble(); err == nil {
			d = decimal.NewFromFloat(f)
		}
	case bsontype.Int32:
		var i int32
		if i, err = vr.ReadInt32(); err == nil {
			d = decimal.NewFromInt32(i)
		}
	case bsontype.Int64:
		var i int64
		if i, err = vr.ReadInt64(); err == nil {
			d = decimal.NewFromInt(i)
		}
	case bsontype.Decimal128:
		if dec, rerr := vr.ReadDecimal128(); rerr != nil {
			err = rerr
		} else {
			d, err = decimal.NewFromString(dec.String())
		}
	case bsontype.Null:
		err = vr.ReadNull()
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}
	if err != nil {
		return fmt.Errorf("decode decimal: %w", err)
	}

	val.Set(reflect.ValueOf(d))
	return nil
}
