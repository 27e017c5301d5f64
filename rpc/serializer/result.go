package serializer

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
)

// --------------------------------------------------------------------------
// Result encoding
// --------------------------------------------------------------------------

func (e *encoder) writeServerResult(r common.ServerResult) {
	e.writeLen(len(r.Results))
	for i, res := range r.Results {
		e.writeResult(res)
		if e.err != nil {
			e.err = fmt.Errorf("result %d: %w", i, e.err)
			return
		}
	}
}

func (e *encoder) writeResult(r common.Result) {
	switch res := r.(type) {
	case common.ResultOk:
		e.writeVariant(uint32(common.ResultTOk))
		e.writeResponse(res.Response)
	case common.ResultErr:
		e.writeVariant(uint32(common.ResultTErr))
		e.writeString(res.Message)
	case nil:
		e.fail("result is not set")
	default:
		e.fail("unsupported result %T", r)
	}
}

func (e *encoder) writeResponse(r common.ServerResponse) {
	if r == nil {
		e.fail("response is not set")
		return
	}
	if !e.checkDialect(r) {
		return
	}
	e.writeVariant(uint32(r.Type()))

	switch resp := r.(type) {
	case common.RespUnit, common.RespPong:
		// no fields
	case common.RespClientList:
		e.writeLen(len(resp.Clients))
		for _, c := range resp.Clients {
			e.writeString(c.Address)
			e.writeSystemTime(c.TimeConnected)
		}
	case common.RespStoreList:
		e.writeLen(len(resp.Stores))
		for _, s := range resp.Stores {
			e.writeString(s.Name)
			e.writeU64(s.Len)
			e.writeU64(s.SizeInBytes)
		}
	case common.RespInfoServer:
		e.writeString(resp.Info.Address)
		e.writeVersion(resp.Info.Version)
		if !resp.Info.Type.Valid() {
			e.fail("unknown server type %d", uint32(resp.Info.Type))
			return
		}
		e.writeVariant(uint32(resp.Info.Type))
		e.writeU64(resp.Info.Limit)
		e.writeU64(resp.Info.Remaining)
	case common.RespSet:
		e.writeU64(resp.Upsert.Inserted)
		e.writeU64(resp.Upsert.Updated)
	case common.RespGet:
		e.writeLen(len(resp.Entries))
		for _, entry := range resp.Entries {
			e.writeStoreEntry(entry)
		}
	case common.RespGetSimN:
		e.writeLen(len(resp.Entries))
		for _, entry := range resp.Entries {
			e.writeStoreKey(entry.Key)
			e.writeStoreValue(entry.Value)
			e.writeF32(entry.Similarity)
		}
	case common.RespDel:
		e.writeU64(resp.Deleted)
	case common.RespCreateIndex:
		e.writeU64(resp.Created)
	case common.RespAIStoreList, common.RespAIGet, common.RespAIGetSimN:
		e.writeAIResponse(resp)
	default:
		e.fail("unsupported response %T", r)
	}
}

// --------------------------------------------------------------------------
// Result decoding
// --------------------------------------------------------------------------

func (d *decoder) readServerResult() common.ServerResult {
	n := d.readLen("results", 1)
	var r common.ServerResult
	if n > 0 {
		r.Results = make([]common.Result, 0, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		r.Results = append(r.Results, d.readResult())
	}
	return r
}

func (d *decoder) readResult() common.Result {
	switch t := common.ResultType(d.readVariant("result")); {
	case d.err != nil:
		return nil
	case t == common.ResultTOk:
		return common.ResultOk{Response: d.readResponse()}
	case t == common.ResultTErr:
		return common.ResultErr{Message: d.readString("error message")}
	default:
		d.fail("unknown result variant %d", uint32(t))
		return nil
	}
}

func (d *decoder) readResponse() common.ServerResponse {
	t := common.ResponseType(d.readVariant("response"))
	if d.err != nil {
		return nil
	}
	if d.ai && aiPayload(t) {
		return d.readAIResponse(t)
	}

	switch t {
	case common.RespTUnit:
		return common.RespUnit{}
	case common.RespTPong:
		return common.RespPong{}
	case common.RespTClientList:
		// address (>= 1 byte) + system time (12 bytes)
		n := d.readLen("client list", 13)
		var clients []common.ConnectedClient
		if n > 0 {
			clients = make([]common.ConnectedClient, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			clients = append(clients, common.ConnectedClient{
				Address:       d.readString("client address"),
				TimeConnected: d.readSystemTime(),
			})
		}
		return common.RespClientList{Clients: clients}
	case common.RespTStoreList:
		n := d.readLen("store list", 17)
		var stores []common.StoreInfo
		if n > 0 {
			stores = make([]common.StoreInfo, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			stores = append(stores, common.StoreInfo{
				Name:        d.readString("store name"),
				Len:         d.readU64("store len"),
				SizeInBytes: d.readU64("store size"),
			})
		}
		return common.RespStoreList{Stores: stores}
	case common.RespTInfoServer:
		info := common.ServerInfo{
			Address: d.readString("server address"),
			Version: d.readVersion(),
			Type:    common.ServerType(d.readVariant("server type")),
		}
		if d.err == nil && !info.Type.Valid() {
			d.fail("unknown server type variant %d", uint32(info.Type))
		}
		info.Limit = d.readU64("limit")
		info.Remaining = d.readU64("remaining")
		return common.RespInfoServer{Info: info}
	case common.RespTSet:
		return common.RespSet{Upsert: common.StoreUpsert{
			Inserted: d.readU64("inserted"),
			Updated:  d.readU64("updated"),
		}}
	case common.RespTGet:
		n := d.readLen("entries", 2)
		var entries []common.StoreEntry
		if n > 0 {
			entries = make([]common.StoreEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			entries = append(entries, d.readStoreEntry())
		}
		return common.RespGet{Entries: entries}
	case common.RespTGetSimN:
		n := d.readLen("similar entries", 6)
		var entries []common.SimilarEntry
		if n > 0 {
			entries = make([]common.SimilarEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			entries = append(entries, common.SimilarEntry{
				Key:        d.readStoreKey(),
				Value:      d.readStoreValue(),
				Similarity: d.readF32("similarity"),
			})
		}
		return common.RespGetSimN{Entries: entries}
	case common.RespTDel:
		return common.RespDel{Deleted: d.readU64("deleted")}
	case common.RespTCreateIndex:
		return common.RespCreateIndex{Created: d.readU64("created")}
	default:
		d.fail("unknown response variant %d", uint32(t))
		return nil
	}
}
